package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/importer"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/bee-cms/bee/internal/validation"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// liveJournalImageExtensions are tried for LiveJournal image URLs, which
// omit the extension of the exported file.
var liveJournalImageExtensions = []string{"gif", "png", "jpg", "jpeg"}

// commonFlags are accepted by every import command.
type commonFlags struct {
	User    string   `flag:"user"`
	Site    string   `flag:"site" validate:"omitempty,hostname_port|hostname"`
	Filemap string   `flag:"filemap" validate:"omitempty,file"`
	Images  []string `flag:"images" validate:"dive,urlmap"`
}

func (f *commonFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.User, "user", "", "local user the import is attributed to (default $IMPORT_USER)")
	fl.StringVar(&f.Site, "site", "", "domain the user's posts are published on (default $SITE_DOMAIN)")
	fl.StringVar(&f.Filemap, "filemap", "", "file of URL=PATH lines mapping asset URLs to exported files")
	fl.StringArrayVar(&f.Images, "images", nil, "map asset URLs under BASEURL to files under PATH, as BASEURL=PATH (repeatable)")
}

// pathResolver chains the user's URL maps in front of the source's own
// resolvers. probe lists extensions to try when a mapped file is missing.
func (f *commonFlags) pathResolver(probe []string, defaults ...assets.PathResolver) (assets.PathResolver, error) {
	m, err := assets.ParsePrefixMaps(f.Images)
	if err != nil {
		return nil, err
	}
	if f.Filemap != "" {
		fm, err := assets.LoadFilemap(f.Filemap)
		if err != nil {
			return nil, err
		}
		m.Merge(fm)
	}
	if len(probe) > 0 {
		m.WithExtensionProbe(probe...)
	}
	return append(assets.Chain{m}, defaults...), nil
}

// validate checks the shared flags and the importer options together.
func validate(v *validation.Validator, common *commonFlags, opts interface{}) error {
	if err := v.Check(common); err != nil {
		return err
	}
	return v.Check(opts)
}

// runImport runs the importer build returns on behalf of the user named by
// the common flags and prints the recorded run.
func runImport(cmd *cobra.Command, log zerolog.Logger, common *commonFlags, path string, build func(a *app) (importer.Source, error)) error {
	ctx := cmd.Context()

	a, err := openApp(log)
	if err != nil {
		return err
	}
	defer a.Close()

	author, err := a.services.Import.EnsureAuthor(ctx, common.User, common.Site)
	if err != nil {
		return err
	}
	src, err := build(a)
	if err != nil {
		return err
	}

	run, err := a.services.Import.Run(ctx, src, path, author)
	if run != nil {
		printRun(cmd.OutOrStdout(), run)
	}
	return err
}

func printRun(w io.Writer, run *models.ImportRun) {
	fmt.Fprintf(w, "%s import %s (run %s, %dms)\n", run.Source, run.Status, run.ID, run.DurationMs)
	fmt.Fprintf(w, "  posts:    %d created, %d updated\n", run.PostsCreated, run.PostsUpdated)
	fmt.Fprintf(w, "  comments: %d created, %d updated\n", run.CommentsCreated, run.CommentsUpdated)
	fmt.Fprintf(w, "  assets:   %d created, %d reused\n", run.AssetsCreated, run.AssetsReused)
	fmt.Fprintf(w, "  groups:   %d created\n", run.GroupsCreated)
	fmt.Fprintf(w, "  skipped:  %d\n", run.Skipped)
	if run.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", run.Error)
	}
}

func newTypePadCommand(log zerolog.Logger, v *validation.Validator) *cobra.Command {
	var common commonFlags
	cmd := &cobra.Command{
		Use:   "import-tp DIR",
		Short: "Import a directory of TypePad entry documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := importer.TypePadOptions{Dir: args[0]}
			if err := validate(v, &common, opts); err != nil {
				return err
			}
			return runImport(cmd, log, &common, opts.Dir, func(a *app) (importer.Source, error) {
				paths, err := common.pathResolver(nil, assets.TypePadFiles(opts.Dir))
				if err != nil {
					return nil, err
				}
				opts.Paths = paths
				opts.Fetcher = importer.NewHTTPFetcher(a.cfg.Import.HTTPTimeout)
				return importer.NewTypePad(a.importerDeps(), opts), nil
			})
		},
	}
	common.register(cmd)
	return cmd
}

func newLiveJournalCommand(log zerolog.Logger, v *validation.Validator) *cobra.Command {
	var (
		common commonFlags
		opts   importer.LiveJournalOptions
	)
	cmd := &cobra.Command{
		Use:   "import-lj EXPORT",
		Short: "Import a LiveJournal XML export (- reads standard input)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			if err := validate(v, &common, opts); err != nil {
				return err
			}
			return runImport(cmd, log, &common, opts.Path, func(a *app) (importer.Source, error) {
				paths, err := common.pathResolver(liveJournalImageExtensions)
				if err != nil {
					return nil, err
				}
				opts.Paths = paths
				return importer.NewLiveJournal(a.importerDeps(), opts), nil
			})
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&opts.FOAFPath, "foaf", "", "FOAF document naming the journal's friends")
	cmd.Flags().StringVar(&opts.AtomIDPrefix, "atomid", "", "atom id prefix (default urn:lj:<domain>:atom1:<user>:)")
	return cmd
}

func newVoxCommand(log zerolog.Logger, v *validation.Validator) *cobra.Command {
	var (
		common commonFlags
		opts   importer.VoxOptions
	)
	cmd := &cobra.Command{
		Use:   "import-vox EXPORT",
		Short: "Import a Vox Atom export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			if err := validate(v, &common, opts); err != nil {
				return err
			}
			return runImport(cmd, log, &common, opts.Path, func(a *app) (importer.Source, error) {
				var defaults []assets.PathResolver
				if opts.Path != "-" {
					defaults = append(defaults, assets.VoxFiles(filepath.Dir(opts.Path)))
				}
				paths, err := common.pathResolver(nil, defaults...)
				if err != nil {
					return nil, err
				}
				opts.Paths = paths
				return importer.NewVox(a.importerDeps(), opts), nil
			})
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&opts.OpenID, "openid", "", "the author's Vox profile URL (required)")
	cmd.Flags().BoolVar(&opts.SkipPosts, "skip-posts", false, "import only comments, onto posts imported earlier")
	return cmd
}

func newTumblrCommand(log zerolog.Logger, v *validation.Validator) *cobra.Command {
	var common commonFlags
	cmd := &cobra.Command{
		Use:   "import-tumblr DIR",
		Short: "Import a directory of Tumblr post documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := importer.TumblrOptions{Dir: args[0]}
			if err := validate(v, &common, opts); err != nil {
				return err
			}
			return runImport(cmd, log, &common, opts.Dir, func(a *app) (importer.Source, error) {
				paths, err := common.pathResolver(nil)
				if err != nil {
					return nil, err
				}
				opts.Paths = paths
				return importer.NewTumblr(a.importerDeps(), opts), nil
			})
		},
	}
	common.register(cmd)
	return cmd
}

func newMovableTypeCommand(log zerolog.Logger, v *validation.Validator) *cobra.Command {
	var (
		common      commonFlags
		opts        importer.MovableTypeOptions
		listBlogs   bool
		listAuthors bool
		listEntries bool
	)
	cmd := &cobra.Command{
		Use:   "import-mt DATABASE",
		Short: "Import or inspect a Movable Type SQLite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.DBPath = args[0]
			if err := validate(v, &common, opts); err != nil {
				return err
			}

			if listBlogs || listAuthors || listEntries {
				// Listing only reads the Movable Type database.
				mt := importer.NewMovableType(importer.Deps{Repos: &repository.Repositories{}, Log: log}, opts)
				out := cmd.OutOrStdout()
				switch {
				case listBlogs:
					return mt.ListBlogs(cmd.Context(), out)
				case listAuthors:
					return mt.ListAuthors(cmd.Context(), out)
				default:
					return mt.ListEntries(cmd.Context(), out)
				}
			}

			return runImport(cmd, log, &common, opts.DBPath, func(a *app) (importer.Source, error) {
				paths, err := common.pathResolver(nil)
				if err != nil {
					return nil, err
				}
				opts.Paths = paths
				return importer.NewMovableType(a.importerDeps(), opts), nil
			})
		},
	}
	common.register(cmd)
	fl := cmd.Flags()
	fl.Int64Var(&opts.BlogID, "blog", 0, "ID of the blog to import or list entries of")
	fl.Int64Var(&opts.AuthorID, "author", 0, "only import entries by this Movable Type author ID")
	fl.BoolVar(&listBlogs, "list-blogs", false, "list the blogs in the database and exit")
	fl.BoolVar(&listAuthors, "list-authors", false, "list the authors in the database and exit")
	fl.BoolVar(&listEntries, "list-entries", false, "list the first entries of --blog and exit")
	cmd.MarkFlagsMutuallyExclusive("list-blogs", "list-authors", "list-entries")
	return cmd
}

func newRewriteLinksCommand(log zerolog.Logger) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "rewrite-links",
		Short: "Point links to old permalinks at the imported posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(log)
			if err != nil {
				return err
			}
			defer a.Close()

			authorID := ""
			if username != "" {
				user, err := a.repos.User.GetByUsername(ctx, username)
				if err != nil {
					return err
				}
				if user == nil {
					return fmt.Errorf("no user named %s", username)
				}
				authorID = user.ID
			}

			stats, err := a.services.Links.RewriteLinks(ctx, authorID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d posts, rewrote %d links in %d posts\n", stats.Checked, stats.Links, stats.Updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "only rewrite posts by this user (default all posts)")
	return cmd
}
