// Command datasetd is the composition root: it loads every dataset
// configuration under -datasetdir, constructs one core.Dataset per entry,
// runs an initial catalog build, starts each dataset's reload loop, and
// serves queries over HTTP -- the role main.go plays for the teacher, now
// fronted by httpapi's mux.Router instead of a single catch-all handler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayudhien/erddap/config"
	"github.com/ayudhien/erddap/core"
	"github.com/ayudhien/erddap/discovery/localdiscovery"
	"github.com/ayudhien/erddap/filereader/duckdbreader"
	"github.com/ayudhien/erddap/httpapi"
	"github.com/ayudhien/erddap/internal/logx"
	"github.com/ayudhien/erddap/notify"
)

func main() {
	flags := initFlags()

	var notifier core.Notifier = notify.Logging{}
	if *flags.ServerConfig != "" {
		config.InitServerConfiguration(*flags.ServerConfig)
		if config.Server.SMTP.Enabled {
			notifier = notify.NewSMTP(config.Server.SMTP)
		}
	}

	datasets, err := loadDatasets(*flags.DatasetDir, *flags.DataDir, notifier)
	if err != nil {
		logx.Errorf("loading datasets: %v", err)
		os.Exit(1)
	}
	if len(datasets) == 0 {
		logx.Printf("no datasets found under %s", *flags.DatasetDir)
	}

	ctx := context.Background()
	for id, ds := range datasets {
		if _, err := ds.Reload(ctx); err != nil {
			logx.Errorf("initial build of dataset %s: %v", id, err)
			continue
		}
		ds.StartReloadLoop(ctx)
	}

	router := httpapi.NewRouter(datasets)
	addr := *flags.Host + ":" + *flags.Port
	logx.Printf("Dataset API Running: %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		panic(err)
	}
}

// loadDatasets reads every *.yaml file under datasetDir as a dataset
// config and constructs a core.Dataset for it, always backed by the local
// filesystem (localdiscovery + duckdbreader). The config's filesAreLocal
// flag, which defaults to false when omitted, only controls bad-file
// retention.
func loadDatasets(datasetDir, dataDir string, notifier core.Notifier) (map[string]*core.Dataset, error) {
	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*core.Dataset{}, nil
		}
		return nil, fmt.Errorf("read dataset dir %s: %w", datasetDir, err)
	}

	out := make(map[string]*core.Dataset)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(datasetDir, entry.Name())
		cfg, err := config.LoadDatasetConfig(path)
		if err != nil {
			logx.Errorf("skipping %s: %v", path, err)
			continue
		}

		reader, err := duckdbreader.Open()
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", cfg.DatasetID, err)
		}
		discovery := &localdiscovery.Local{
			Dir:       cfg.FileDir,
			NameRegex: cfg.FileNameRegex,
			Recursive: cfg.Recursive,
		}

		ds, err := core.NewDataset(cfg, filepath.Join(dataDir, cfg.DatasetID), reader, discovery, notifier)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", cfg.DatasetID, err)
		}
		out[cfg.DatasetID] = ds
	}
	return out, nil
}
