// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"crypto/rand"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"
	"storj.io/objectmanager/objectmanager"
	"storj.io/objectmanager/pkg/ids"
)

var (
	rootCmd = &cobra.Command{
		Use:   "objectmanager",
		Short: "Object transfer node",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the object transfer node",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}

	runCfg   objectmanager.Config
	setupCfg objectmanager.Config

	confDir string
)

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "objectmanager")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for objectmanager configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(freeCmd)
	rootCmd.AddCommand(pullCmd)

	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
	process.Bind(freeCmd, &freeCfg, defaults)
	process.Bind(pullCmd, &pullCfg, defaults)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	if err := runCfg.Verify(log); err != nil {
		log.Error("Invalid configuration.", zap.Error(err))
		return err
	}

	db, err := objectmanager.OpenStore(log.Named("storage"), runCfg.Storage)
	if err != nil {
		return errs.New("Error opening object store: %+v", err)
	}

	registry, registryCloser, err := objectmanager.OpenNodes(ctx, runCfg.Nodes)
	if err != nil {
		return errs.Combine(errs.New("Error opening node table: %+v", err), db.Close())
	}
	defer func() {
		err = errs.Combine(err, registryCloser.Close())
	}()

	peer, err := objectmanager.New(log, runCfg, db, registry)
	if err != nil {
		return errs.Combine(err, db.Close())
	}

	log.Info("Node started.",
		zap.Stringer("Node ID", peer.ID()),
		zap.String("Address", peer.Addr()),
		zap.String("Backend", runCfg.Storage.Backend))

	runError := peer.Run(ctx)
	closeError := peer.Close()
	return errs.Combine(runError, closeError)
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return errs.New("objectmanager configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	overrides := map[string]interface{}{}
	if setupCfg.Node.ID == "" {
		var id ids.NodeID
		if _, err := rand.Read(id[:]); err != nil {
			return err
		}
		overrides["node.id"] = id.String()
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"),
		process.SaveConfigWithOverrides(overrides))
}

// loadEnvFile loads variables from a .env file in the working directory.
// Variables that are already set take precedence.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func main() {
	logger, _, _ := process.NewLogger("objectmanager")
	zap.ReplaceGlobals(logger)

	if err := loadEnvFile(); err != nil {
		logger.Warn("Failed to load .env file.", zap.Error(err))
	}

	process.ExecCustomDebug(rootCmd)
}
