package backup

import (
	"context"

	"go.uber.org/zap"

	"github.com/openlake/icevault/location"
	"github.com/openlake/icevault/spec"
)

// manifestArtifact is one manifest or manifest list staged for upload.
type manifestArtifact struct {
	absPath string
	relPath string
	content []byte
	data    *spec.ManifestData
}

// collection is everything traversal gathered from a table's manifest
// hierarchy: its manifest lists (raw bytes), its manifests (filtered to
// active entries and re-encoded), and the active data file paths.
type collection struct {
	manifestLists []manifestArtifact
	manifests     []manifestArtifact
	dataFiles     []string
}

// collect walks the manifest hierarchy of a metadata document: each
// snapshot's manifest list, every manifest those lists name, and every
// active data file those manifests name. Each stage completes before the
// next starts, since its output is the next stage's input.
//
// Traversal never fails: a manifest list or manifest that cannot be read
// or decoded is logged and skipped, yielding fewer collected files.
func (e *Engine) collect(ctx context.Context, md *spec.TableMetadata, tableRoot string) *collection {
	c := &collection{}

	seenLists := make(map[string]bool)
	for _, snap := range md.Snapshots() {
		if snap.ManifestList == "" {
			continue
		}
		abs := location.Resolve(snap.ManifestList, tableRoot)
		if seenLists[abs] {
			continue
		}
		seenLists[abs] = true

		content, err := e.get(ctx, abs)
		if err != nil {
			e.logger.Warn("skipping unreadable manifest list",
				zap.String("path", abs), zap.Error(err))
			continue
		}
		data, err := spec.ReadManifestData(content)
		if err != nil {
			e.logger.Warn("skipping manifest list",
				zap.Error(&DecodeError{Path: abs, Cause: err}))
			continue
		}

		c.manifestLists = append(c.manifestLists, manifestArtifact{
			absPath: abs,
			relPath: location.Abstract(abs, tableRoot),
			content: content,
			data:    data,
		})
	}

	seenManifests := make(map[string]bool)
	for _, list := range c.manifestLists {
		for _, mp := range list.data.ManifestPaths() {
			abs := location.Resolve(mp, tableRoot)
			if seenManifests[abs] {
				continue
			}
			seenManifests[abs] = true

			content, err := e.get(ctx, abs)
			if err != nil {
				e.logger.Warn("skipping unreadable manifest",
					zap.String("path", abs), zap.Error(err))
				continue
			}
			data, err := spec.ReadManifestData(content)
			if err != nil {
				e.logger.Warn("skipping manifest",
					zap.Error(&DecodeError{Path: abs, Cause: err}))
				continue
			}

			filtered := data.FilterActive()
			encoded, err := filtered.Encode()
			if err != nil {
				e.logger.Warn("skipping manifest that failed to re-encode",
					zap.String("path", abs), zap.Error(err))
				continue
			}

			c.manifests = append(c.manifests, manifestArtifact{
				absPath: abs,
				relPath: location.Abstract(abs, tableRoot),
				content: encoded,
				data:    filtered,
			})
		}
	}

	seenFiles := make(map[string]bool)
	for _, m := range c.manifests {
		for _, df := range m.data.ActiveDataFiles() {
			abs := location.Resolve(df, tableRoot)
			if seenFiles[abs] {
				continue
			}
			seenFiles[abs] = true
			c.dataFiles = append(c.dataFiles, abs)
		}
	}

	return c
}
