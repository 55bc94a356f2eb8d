// Command repomgrd hosts the build-orchestration server: it loads the
// server configuration, opens the storage environment, restores every
// configured database, and then blocks until the process is stopped. It
// opens no listener and serves no requests itself.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/repoforge/repomgr/internal/buildaction"
	"github.com/repoforge/repomgr/internal/serverconfig"
	"github.com/repoforge/repomgr/pkg/pkgdata"
	"github.com/repoforge/repomgr/pkg/storage"
)

var (
	cfgFile string
	debug   bool
)

// storageCacheCapacity bounds each database's in-memory LRU of recently
// used package entries; the durable copy always lives in bbolt regardless.
const storageCacheCapacity = 4096

var rootCmd = &cobra.Command{
	Use:     "repomgrd",
	Short:   "Build-orchestration server for a rolling binary package repository",
	Version: "0.1.0",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load config and storage, then block until stopped",
	RunE:  runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to the server's YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stdout, "[repomgrd] ", log.LstdFlags)

	cfg, err := serverconfig.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading server config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	env, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("opening storage environment: %w", err)
	}
	defer env.Close()

	config := pkgdata.NewConfig()
	config.Architectures = cfg.Architectures
	config.PackageCacheDirs = cfg.PackageCacheDirs

	for _, dbCfg := range cfg.Databases {
		if err := env.EnsureDatabaseBuckets(dbCfg.Name); err != nil {
			return fmt.Errorf("preparing storage for database %q: %w", dbCfg.Name, err)
		}
		db := config.FindOrCreateDatabase(dbCfg.Name, dbCfg.Arch)
		db.Path = dbCfg.Path
		db.FilesPath = dbCfg.FilesPath
		db.LocalPkgDir = dbCfg.LocalPkgDir
		db.Mirrors = dbCfg.Mirrors
		db.SyncFromMirror = dbCfg.SyncFromMirror

		cache, err := storage.NewStorageCache[pkgdata.Package](env, dbCfg.Name, storage.PackagesBucket, storageCacheCapacity, pkgdata.PackageCodec())
		if err != nil {
			return fmt.Errorf("building storage cache for database %q: %w", dbCfg.Name, err)
		}
		db.AttachStorage(cache)
		if err := db.LoadPackagesFromStorage(); err != nil {
			// Non-fatal: a brand new environment has nothing persisted yet,
			// and a corrupt single bucket shouldn't take the whole server
			// down when a reload action can repopulate it.
			logger.Printf("database %s: loading packages from storage: %v", db.Name, err)
		}

		logger.Printf("registered database %s (%s), %d packages loaded from storage", db.Name, db.Arch, len(db.Packages))
	}

	rt := buildaction.NewRuntime(config)
	for _, id := range rt.MetaInfo().TypeIDs() {
		logger.Printf("registered action type %s", id)
	}
	logger.Printf("listen address %s configured; no listener is opened", cfg.ListenAddress)

	select {}
}
