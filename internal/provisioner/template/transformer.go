// Package template copies an immutable template prefix into a working
// prefix, substituting placeholders in variables.tf.
package template

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/storage"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Placeholders recognised in variables.tf.
const (
	NodeName    = "__NODE_NAME__"
	ServerType  = "__SERVER_TYPE__"
	Location    = "__LOCATION__"
	HCloudToken = "__HCLOUD_TOKEN__"
	Distro      = "__DISTRO__"
)

// DefaultDistro is substituted for __DISTRO__ when no distro is given.
const DefaultDistro = "debian-12"

// SubstitutedFile is the only relative path rewritten on copy.
const SubstitutedFile = "variables.tf"

type Transformer struct {
	store storage.Store
}

func NewTransformer(store storage.Store) *Transformer {
	return &Transformer{store: store}
}

// Transform copies every object under src to dst. variables.tf is
// downloaded, rewritten and uploaded; everything else is copied server-side.
// The first failure aborts and leaves dst partially populated.
func (t *Transformer) Transform(ctx context.Context, src, dst string, replacements map[string]string, distro *string) error {
	log := logger.Named("template").With(zap.String("src", src), zap.String("dst", dst))

	keys, err := t.store.List(ctx, src)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeTemplate, "list template")
	}

	vars := withDistro(replacements, distro)
	for _, key := range keys {
		rel, ok := storage.RelativeKey(src, key)
		if !ok || rel == "" {
			continue
		}
		if rel == SubstitutedFile {
			if err := t.rewrite(ctx, key, dst+rel, vars); err != nil {
				return err
			}
			log.Debug("template file substituted", zap.String("key", rel))
			continue
		}
		if err := t.store.Copy(ctx, key, dst+rel); err != nil {
			return appErr.Wrap(err, appErr.CodeTemplate, "copy "+rel)
		}
		log.Debug("template file copied", zap.String("key", rel))
	}

	log.Info("template transformed", zap.Int("objects", len(keys)))
	return nil
}

func (t *Transformer) rewrite(ctx context.Context, srcKey, dstKey string, vars map[string]string) error {
	rc, meta, err := t.store.Get(ctx, srcKey)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeTemplate, "download "+SubstitutedFile)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeTemplate, "read "+SubstitutedFile)
	}

	if err := t.store.Put(ctx, dstKey, strings.NewReader(Substitute(string(b), vars)), meta); err != nil {
		return appErr.Wrap(err, appErr.CodeTemplate, "upload "+SubstitutedFile)
	}
	return nil
}

// Substitute replaces every literal occurrence of each placeholder.
// Iteration order is unspecified; no replacement value may contain
// another placeholder.
func Substitute(content string, vars map[string]string) string {
	for placeholder, value := range vars {
		content = strings.ReplaceAll(content, placeholder, value)
	}
	return content
}

func withDistro(replacements map[string]string, distro *string) map[string]string {
	vars := make(map[string]string, len(replacements)+1)
	for k, v := range replacements {
		vars[k] = v
	}
	vars[Distro] = DefaultDistro
	if distro != nil && *distro != "" {
		vars[Distro] = *distro
	}
	return vars
}
