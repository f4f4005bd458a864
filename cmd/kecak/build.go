package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/kecaknoah/cache"
	"github.com/chazu/kecaknoah/compiler"
	"github.com/chazu/kecaknoah/vm"
)

// ImageExt is the extension of compiled bytecode images.
const ImageExt = ".kcb"

// builder compiles input files into one image, going through the image
// cache when one is open.
type builder struct {
	opts  compiler.Options
	store *cache.Store
}

func newBuilder(cfg *config) *builder {
	return &builder{opts: cfg.opts, store: cfg.openCache()}
}

func (b *builder) Close() {
	if b.store != nil {
		b.store.Close()
	}
}

// buildFiles compiles or loads every file and merges the results in order.
func (b *builder) buildFiles(paths []string) (*vm.Image, error) {
	merged := &vm.Image{}
	for _, path := range paths {
		img, err := b.buildFile(path)
		if err != nil {
			return nil, err
		}
		merged.Classes = append(merged.Classes, img.Classes...)
		merged.Methods = append(merged.Methods, img.Methods...)
	}
	return merged, nil
}

func (b *builder) buildFile(path string) (*vm.Image, error) {
	if filepath.Ext(path) == ImageExt {
		img, err := vm.LoadImageFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := string(data)

	if b.store != nil {
		img, hit, err := b.store.Compile(source, b.opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if hit {
			log.Debugf("cache hit: %s", path)
		}
		return img, nil
	}

	img, err := compiler.Compile(source, b.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("compiled %s: %d classes, %d methods", path, len(img.Classes), len(img.Methods))
	return img, nil
}

// defaultImagePath names the output image after the project, or after the
// first input file when there is no manifest.
func defaultImagePath(cfg *config, files []string) string {
	if cfg.manifest != nil && cfg.manifest.Project.Name != "" {
		return filepath.Join(cfg.manifest.Dir, cfg.manifest.Project.Name+ImageExt)
	}
	first := files[0]
	return strings.TrimSuffix(first, filepath.Ext(first)) + ImageExt
}
