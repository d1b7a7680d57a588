package main

import (
	"errors"
	"fmt"

	"github.com/openmined/localsync/internal/client/config"
	"github.com/openmined/localsync/internal/utils"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the LocalSync config",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cfg)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective config to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// no file was read, so write where --config points
			if cfg.Path == "" {
				if cfg.Path, err = utils.ResolvePath(cmd.Flag("config").Value.String()); err != nil {
					return err
				}
			}
			if utils.FileExists(cfg.Path) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", cfg.Path)
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			// read it back so a broken file never goes unnoticed
			if _, err := config.LoadFromFile(cfg.Path); err != nil {
				return errors.Join(errors.New("config written but does not load"), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green.Render("wrote"), cfg.Path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}
