/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"instory/internal/backend"
	"instory/internal/reader"
	"instory/internal/vector"
)

const readHelp = "enter: next  1-9: choose  l <code>: language  r: restart  q: quit"

func newReadCmd(a *app) *cobra.Command {
	var (
		mode string
		lang string
	)
	cmd := &cobra.Command{
		Use:   "read <story-id>",
		Short: "Read a published story in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode == "" {
				mode = a.cfg.Reader.DefaultMode
			}
			c, err := a.client(false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			v, err := c.StartSession(ctx, args[0], reader.Mode(mode), lang, vector.Size{})
			if err != nil {
				return err
			}
			defer func() { _ = c.EndSession(context.WithoutCancel(ctx), v.ID) }()
			return readLoop(ctx, c, v, a.in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "focus or panel-to-panel (default from config)")
	cmd.Flags().StringVar(&lang, "lang", "", "reading language (default: the story's default)")
	return cmd
}

// stepper is the part of the API client the reading loop drives.
type stepper interface {
	Step(ctx context.Context, sessionID, action string, body any) (backend.SessionView, error)
}

func readLoop(ctx context.Context, c stepper, v backend.SessionView, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	lastScene := ""
	for {
		snap := v.Snapshot
		if snap.SceneID != lastScene {
			fmt.Fprintf(out, "\n== %s ==\n", snap.SceneTitle)
			lastScene = snap.SceneID
		}
		printPanel(out, snap)
		if snap.Ended {
			fmt.Fprintln(out, "\n-- The End --")
			return nil
		}
		for i, ch := range snap.Choices {
			fmt.Fprintf(out, "  %d) %s\n", i+1, ch.Text)
		}
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			return sc.Err()
		}
		cmd := strings.TrimSpace(sc.Text())
		var (
			next backend.SessionView
			err  error
		)
		switch {
		case cmd == "":
			next, err = c.Step(ctx, v.ID, "next", nil)
		case cmd == "q":
			return nil
		case cmd == "r":
			next, err = c.Step(ctx, v.ID, "restart", nil)
			lastScene = ""
		case cmd == "?" || cmd == "h":
			fmt.Fprintln(out, readHelp)
			continue
		case strings.HasPrefix(cmd, "l "):
			next, err = c.Step(ctx, v.ID, "language", map[string]string{"language": strings.TrimSpace(cmd[2:])})
		default:
			n, perr := strconv.Atoi(cmd)
			if perr != nil || n < 1 || n > len(snap.Choices) {
				fmt.Fprintln(out, readHelp)
				continue
			}
			next, err = c.Step(ctx, v.ID, "choose", map[string]string{"choice_id": snap.Choices[n-1].ID})
		}
		if err != nil {
			return err
		}
		v = next
	}
}

func printPanel(out io.Writer, snap reader.Snapshot) {
	for _, p := range snap.Panels {
		if !p.Current {
			continue
		}
		fmt.Fprintf(out, "[panel %d/%d]\n", snap.PanelIndex+1, snap.PanelCount)
		for _, t := range p.Texts {
			fmt.Fprintf(out, "  %s: %s\n", t.BubbleType, t.Text)
		}
	}
}
