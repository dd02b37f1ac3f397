package orchestrator

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/ledger"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/paths"
	"github.com/zjrosen/ttr/internal/registry"
	"github.com/zjrosen/ttr/internal/tracing"
)

// Archive is one build archive and where it unpacks.
type Archive struct {
	Path      string
	Compiler  string
	Precision string
	CPTag     string
	Dir       string
}

// PlanBinaries lists the archives matching the build hash and the
// directories they unpack into.
func (o *Orchestrator) PlanBinaries(ial *definition.IAL) ([]Archive, error) {
	if ial == nil || ial.Hash == "" || ial.BuildTarPath == "" {
		return nil, &registry.ConfigurationError{Key: "ial", Reason: "ial_hash and build_tar_path are required to prepare binaries"}
	}
	template := ial.BindirTemplate()
	if template == "" {
		return nil, &registry.ConfigurationError{Key: "ial.bindir", Reason: "bindir or user_binary_path is required to prepare binaries"}
	}

	files, err := filepath.Glob(filepath.Join(ial.BuildTarPath, "*"+ial.Hash+"*.tar"))
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	archives := make([]Archive, 0, len(files))
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), ".tar")
		a := Archive{Path: f, Compiler: o.opts.DefaultCompiler, Precision: "R64"}
		if strings.Contains(stem, "-sp-") {
			a.Precision = "R32"
		}
		if strings.Contains(stem, "-gnu-") {
			a.Compiler = "gnu"
		}
		a.CPTag = strings.ReplaceAll(strings.ReplaceAll(stem, ial.Hash, ""), "ial", "")
		a.Dir = paths.InstallDir(paths.BinTokens{
			User:      o.opts.User,
			CPTag:     a.CPTag,
			Hash:      ial.Hash,
			Compiler:  a.Compiler,
			Precision: a.Precision,
		}.Expand(template))
		archives = append(archives, a)
	}
	return archives, nil
}

// FetchBinaries unpacks every matching build archive into its binary
// directory. In dry mode directories are created but nothing is extracted.
func (o *Orchestrator) FetchBinaries(ctx context.Context, ial *definition.IAL) (err error) {
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanBinaries, attribute.Bool(tracing.AttrDry, o.opts.Dry))
	defer func() { tracing.End(span, err) }()

	archives, err := o.PlanBinaries(ial)
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		log.Warn(log.CatBinaries, "no archives found", "path", ial.BuildTarPath, "hash", ial.Hash)
	}

	for _, a := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(a.Dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", a.Dir, err)
		}
		log.Info(log.CatBinaries, "untar", "archive", a.Path, "dir", a.Dir, "compiler", a.Compiler, "precision", a.Precision)

		argv := []string{"tar", "xf", a.Path, "-C", a.Dir}
		if o.opts.Dry {
			o.record("", ledger.PhaseBinaries, "tar", argv, ledger.OutcomeDry, 0, nil, nil)
			continue
		}
		start := time.Now()
		err := extractTar(a.Path, a.Dir)
		o.finish("", ledger.PhaseBinaries, "tar", argv, start, err, nil)
		if err != nil {
			return err
		}
		o.metrics.IncArchives()
	}

	log.Info(log.CatBinaries, "all binaries copied, rerun without -p to launch tests")
	return nil
}

// extractTar unpacks archive into dir. Entries escaping dir are rejected.
func extractTar(archive, dir string) error {
	f, err := os.Open(archive) //nolint:gosec // G304: archive comes from the build tar path glob
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", archive, err)
		}

		target := filepath.Join(root, hdr.Name) //nolint:gosec // G305: checked against root below
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes %s", hdr.Name, dir)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			log.Debug(log.CatBinaries, "skip archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) //nolint:gosec // G304: target is confined to the install dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil { //nolint:gosec // G110: archives are trusted build outputs
		_ = out.Close()
		return err
	}
	return out.Close()
}
