package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

// Enumerate expands paths into the sorted, de-duplicated set of files the
// batch covers. Directories contribute the files with an image extension;
// files named explicitly are always included so that a mislabelled or
// unsupported file still gets a report row. No paths means the asset
// directory; an asset directory that does not exist yet is empty.
func (o *Orchestrator) Enumerate(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		if o.cfg.AssetDir == "" {
			return nil, fmt.Errorf("%w: no paths given and no asset directory configured", constant.ErrInvalidConfig)
		}
		exists, err := o.Store.IsExist(ctx, o.cfg.AssetDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", constant.ErrInfrastructure, err)
		}
		if !exists {
			return nil, nil
		}
		paths = []string{o.cfg.AssetDir}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := o.Store.Stat(ctx, p)
		if err != nil {
			// a staged file that vanished is still reported, as unreadable
			add(p)
			continue
		}
		if !info.IsDir {
			add(p)
			continue
		}
		entries, err := o.Store.List(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", constant.ErrInfrastructure, p, err)
		}
		for _, e := range entries {
			if model.ImageExtensions[strings.ToLower(filepath.Ext(e.Path))] {
				add(e.Path)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
