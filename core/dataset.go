package core

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/catalogupdater"
	"github.com/ayudhien/erddap/persist"
	"github.com/ayudhien/erddap/query"
)

// Dataset wires one dataset's catalog, directory table, bad-file registry,
// updater and query executor together, and owns the reload scheduling and
// single-writer discipline of spec §5: "a single writer (catalog updater)
// runs at a time, protected by a mutex so two updater invocations cannot
// overlap," while queries never take that mutex: they read the catalog
// under its own short read lock, and catalog.ReplaceAll swaps in a fully
// built tree so a reader never sees a half-built one.
type Dataset struct {
	Config    *DatasetConfig
	DataDir   string
	Reader    FileReader
	Discovery Discovery
	Notifier  Notifier

	catalog  *catalog.Catalog
	dirs     *catalog.DirTable
	badFiles *catalog.BadFileRegistry
	sentinel *catalog.SchemaSentinel

	updateMu sync.Mutex
	reloadCancel context.CancelFunc
}

// NewDataset validates cfg and loads any previously persisted state from
// dataDir, starting from an empty catalog if none exists or it is
// corrupted (spec §6 "Corruption ... triggers discard-and-rebuild").
func NewDataset(cfg *DatasetConfig, dataDir string, reader FileReader, discovery Discovery, notifier Notifier) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dataset{
		Config:    cfg,
		DataDir:   dataDir,
		Reader:    reader,
		Discovery: discovery,
		Notifier:  notifier,
		catalog:   catalog.NewCatalog(),
		dirs:      catalog.NewDirTable(),
		badFiles:  catalog.NewBadFileRegistry(),
		sentinel:  catalog.NewSchemaSentinel(catalog.NewAttributeOverrides()),
	}

	if state, ok := persist.Load(dataDir); ok {
		for _, dir := range state.Dirs {
			d.dirs.Intern(dir)
		}
		records := make([]*catalog.FileRecord, 0, len(state.Records))
		records = append(records, state.Records...)
		d.catalog.ReplaceAll(records)
		for _, b := range state.BadFiles {
			dirIdx, name := parseBadFileKey(b.Key)
			d.badFiles.Add(dirIdx, name, b.LastModified, b.Reason)
		}
	}

	return d, nil
}

// parseBadFileKey decodes the persisted "dirIndex/name" identity back into
// its components. Only used when loading persisted state -- the in-memory
// registry itself no longer needs a reversible key (see catalog.BadFileEntry.Key).
func parseBadFileKey(key string) (int16, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			n, _ := strconv.ParseInt(key[:i], 10, 16)
			return int16(n), key[i+1:]
		}
	}
	return 0, key
}

// Reload runs one full construction/reload pass: discover files, diff
// against the catalog, scan new/changed files, and persist atomically
// (spec §5: "Construction ... and reload ... run on a dedicated
// goroutine/thread, blocking until complete"). Reload serializes with
// itself via updateMu so two passes never overlap.
func (d *Dataset) Reload(ctx context.Context) (catalogupdater.Summary, error) {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	found, err := d.Discovery.Scan(ctx)
	if err != nil {
		return catalogupdater.Summary{}, fmt.Errorf("discovery: %w", err)
	}

	u := &catalogupdater.Updater{
		Config:   d.Config,
		Reader:   d.Reader,
		Catalog:  d.catalog,
		Dirs:     d.dirs,
		BadFiles: d.badFiles,
		Sentinel: d.sentinel,
		Notifier: d.Notifier,
	}
	summary, err := u.Run(ctx, found)
	if err != nil {
		return summary, err
	}

	if err := d.persist(); err != nil {
		if d.Notifier != nil {
			_ = d.Notifier.Notify(fmt.Sprintf("[%s] persistence failure", d.Config.DatasetID), err.Error())
		}
		return summary, fmt.Errorf("persist: %w", err)
	}
	return summary, nil
}

func (d *Dataset) persist() error {
	records := d.catalog.Snapshot()
	var bad []persist.BadFileOut
	for _, entry := range d.badFiles.Entries() {
		bad = append(bad, persist.BadFileOut{Key: entry.Key(), LastModified: entry.LastModified, Reason: entry.Reason})
	}
	return persist.Save(d.DataDir, d.dirs.Snapshot(), records, bad)
}

// StartReloadLoop begins periodic reload according to
// Config.ReloadEveryNMinutes, stopping when ctx is cancelled or Stop is
// called.
func (d *Dataset) StartReloadLoop(ctx context.Context) {
	if d.Config.ReloadEveryNMinutes <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.reloadCancel = cancel
	go func() {
		ticker := time.NewTicker(time.Duration(d.Config.ReloadEveryNMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = d.Reload(ctx)
			}
		}
	}()
}

// Stop cancels any running reload loop.
func (d *Dataset) Stop() {
	if d.reloadCancel != nil {
		d.reloadCancel()
	}
}

// Query executes q against the dataset's current catalog, built without
// ever locking updateMu -- queries run concurrently with each other and
// with a reload in progress (spec §5).
func (d *Dataset) Query(ctx context.Context, q query.Query, sink ResultSink) error {
	exec := &query.Executor{
		Config:   d.Config,
		Catalog:  d.catalog,
		Dirs:     d.dirs,
		BadFiles: d.badFiles,
		Reader:   d.Reader,
	}
	return exec.Execute(ctx, q, sink)
}

// Catalog exposes the dataset's catalog read-only, for diagnostics/tests.
func (d *Dataset) Catalog() *catalog.Catalog { return d.catalog }

// Dirs exposes the dataset's directory table read-only, for diagnostics/tests.
func (d *Dataset) Dirs() *catalog.DirTable { return d.dirs }

// BadFiles exposes the dataset's bad-file registry read-only, for diagnostics/tests.
func (d *Dataset) BadFiles() *catalog.BadFileRegistry { return d.badFiles }
