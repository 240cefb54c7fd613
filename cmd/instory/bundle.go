/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"instory/internal/bundle"
	"instory/internal/script"
)

func newBundleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Move stories between installations as zip bundles",
	}

	var out string
	exp := &cobra.Command{
		Use:   "export <story-id>",
		Short: "Pack a story with its images into a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			repo, files, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, repo.Close()) }()
			var buf bytes.Buffer
			m, err := bundle.Export(ctx, repo, args[0], &buf, files)
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".instory.zip"
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%q, %d media files)\n", out, m.Title, len(m.Media))
			return nil
		},
	}
	exp.Flags().StringVarP(&out, "out", "o", "", "bundle file (default <story-id>.instory.zip)")

	var author string
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Install a bundle as a new draft story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pkg, err := bundle.Read(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, files, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, repo.Close()) }()
			g, err := bundle.Install(ctx, repo, pkg, author, files)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %q as %s\n", g.Story.Title, g.Story.ID)
			return nil
		},
	}
	imp.Flags().StringVar(&author, "author", "", "owner of the installed story")
	_ = imp.MarkFlagRequired("author")

	cmd.AddCommand(exp, imp)
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var (
		author string
		lang   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import <outline.txt>",
		Short: "Create a draft story from a plain-text outline",
		Long: `Reads a story outline and stores it as a new draft.

  Title: Into the Woods
  # Forest Edge
  Panel 1 The path splits.
  ALICE: Which way?
  * Left -> Deep Woods
  -> Home

Scenes start with "#", panels with "Panel N", and "NAME:" lines become
speech bubbles. CAPTION: and SFX: lines become captions and sound effects.
"* Label -> Scene" offers a choice and "-> Scene" continues without one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, perrs := script.Parse(string(src))
			if len(perrs) > 0 {
				msgs := make([]string, len(perrs))
				for i, e := range perrs {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("%s:\n  %s", args[0], strings.Join(msgs, "\n  "))
			}
			g, err := script.Build(s, script.Options{AuthorID: author, Language: lang})
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%q: %d scenes, %d panels, %d texts, %d choices\n",
					g.Story.Title, len(g.Scenes), len(g.Panels), len(g.Texts), len(g.Choices))
				return nil
			}
			ctx := cmd.Context()
			repo, files, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, repo.Close()) }()
			installed, err := bundle.Install(ctx, repo, &bundle.Package{Graph: g}, author, files)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %q as %s\n", installed.Story.Title, installed.Story.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "owner of the new story")
	cmd.Flags().StringVar(&lang, "lang", "", "language of the outline text when it has no Language: line")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only parse and report")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}
