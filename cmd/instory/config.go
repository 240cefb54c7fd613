/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"instory/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), a.resolvedConfig)
			return err
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if cfg.Server.AuthSecret != "" {
				cfg.Server.AuthSecret = "********"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", a.resolvedConfig)
			for _, key := range config.OverrideKeys() {
				if env, ok := config.EnvOverrideFor(key); ok {
					fmt.Fprintf(out, "# %s from %s\n", key, env)
				}
			}
			if a.token != "" {
				fmt.Fprintln(out, "# backend token stored in keyring")
			}
			_, err = out.Write(data)
			return err
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.resolvedConfig); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", a.resolvedConfig)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			var err error
			if a.configPath == "" {
				err = config.Save(config.Defaults(), "")
			} else {
				err = config.SaveFile(a.configPath, config.Defaults())
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.resolvedConfig)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(path, show, initCmd)
	return cmd
}
