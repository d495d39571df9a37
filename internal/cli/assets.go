package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/claimwiz/internal/assets"
)

// InstallView is the assets install payload.
type InstallView struct {
	Cache     string   `json:"cache"`
	Installed []string `json:"installed"`
	Removed   []string `json:"removed"`
}

// FetchView is the assets fetch payload.
type FetchView struct {
	URL         string        `json:"url"`
	Source      assets.Source `json:"source"`
	Status      int           `json:"status"`
	ContentType string        `json:"content_type,omitempty"`
	Size        int           `json:"size"`
}

func newAssetsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage the offline asset cache",
	}
	cmd.AddCommand(newAssetsInstallCommand(opts))
	cmd.AddCommand(newAssetsFetchCommand(opts))
	return cmd
}

func newAssetsInstallCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install [url...]",
		Short: "Precache assets and drop older cache generations",
		Long: `Precache assets and drop older cache generations.

Without arguments the assets listed in the config are installed. Installation
is all-or-nothing: if any asset cannot be fetched nothing is stored.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			urls := args
			if len(urls) == 0 {
				urls = opts.cfg.Assets
			}
			if len(urls) == 0 {
				return f.Fail(ExitCommandError, ErrCodeBadArgument, "no assets given or configured", nil, nil)
			}

			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			ctx := cmd.Context()
			cache := s.Cache()
			if err := cache.Install(ctx, urls); err != nil {
				return f.Fail(ExitFailure, ErrCodeAssets, "install assets", err.Error(), err)
			}
			removed, err := cache.Activate(ctx)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeAssets, "activate cache", err.Error(), err)
			}
			if removed == nil {
				removed = []string{}
			}

			view := InstallView{Cache: cache.Name(), Installed: urls, Removed: removed}
			text := SuccessMsg("Cached %d asset(s) in %s", len(urls), cache.Name()) + "\n"
			if len(removed) > 0 {
				text += InfoMsg("Removed old caches: %s", strings.Join(removed, ", ")) + "\n"
			}
			return f.Success(view, text)
		},
	}
}

func newAssetsFetchCommand(opts *RootOptions) *cobra.Command {
	var output bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch an asset, cache first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			resp, src, err := s.Cache().Fetch(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeAssets, "fetch asset", err.Error(), err)
			}
			if output && f.Format != "json" {
				_, err := cmd.OutOrStdout().Write(resp.Body)
				return err
			}
			view := FetchView{
				URL:         args[0],
				Source:      src,
				Status:      resp.Status,
				ContentType: resp.ContentType,
				Size:        len(resp.Body),
			}
			return f.Success(view, KeyValues("",
				KV("URL", view.URL),
				KV("Source", string(view.Source)),
				KV("Status", fmt.Sprint(view.Status)),
				KV("Size", fmt.Sprintf("%d bytes", view.Size)),
			))
		},
	}
	cmd.Flags().BoolVarP(&output, "output", "o", false, "write the body to stdout")
	return cmd
}
