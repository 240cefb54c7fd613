/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"instory/internal/backend"
	"instory/internal/config"
	"instory/internal/domain"
	"instory/internal/storage"
)

func newStoriesCmd(a *app) *cobra.Command {
	var (
		author    string
		published bool
		remote    bool
	)
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "List stories in the local database or on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var list []domain.Story
			if remote {
				c, err := a.client(!published)
				if err != nil {
					return err
				}
				if published {
					list, err = c.ListPublished(ctx)
				} else {
					list, err = c.ListStories(ctx)
				}
				if err != nil {
					return err
				}
			} else {
				repo, _, err := a.openStores(ctx)
				if err != nil {
					return err
				}
				defer repo.Close()
				list, err = repo.ListStories(ctx, storage.StoryFilter{AuthorID: author, PublishedOnly: published})
				if err != nil {
					return err
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tPUBLISHED\tUPDATED")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", s.ID, s.Title, s.AuthorID, s.IsPublished, s.UpdatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "only stories of this author")
	cmd.Flags().BoolVar(&published, "published", false, "only published stories")
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the server configured in backend.base_url")
	return cmd
}

// client returns an API client for backend.base_url, with the stored token
// when auth is set.
func (a *app) client(auth bool) (*backend.Client, error) {
	token := ""
	if auth {
		if a.token == "" {
			return nil, fmt.Errorf("not logged in; run instory login")
		}
		token = a.token
	}
	c := backend.NewClient(a.cfg.Backend.BaseURL, token)
	c.SetTimeout(a.cfg.Backend.Timeout())
	if a.cfg.Backend.TLSInsecure {
		c.SkipTLSVerify()
	}
	return c, nil
}

func newLoginCmd(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Get an authoring token and keep it in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			tok, err := c.IssueToken(cmd.Context(), subject, ttl)
			if err != nil {
				return err
			}
			if err := config.SaveToken(tok.Token); err != nil {
				return err
			}
			a.token = tok.Token
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", tok.Subject, tok.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "as", "", "author id to act as")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (server default when zero)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.DeleteToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}
