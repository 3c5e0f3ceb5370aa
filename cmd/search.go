package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/rescue-radar/internal/resolver"
)

func newSearchCmd() *cobra.Command {
	var (
		criteria resolver.Criteria
		page     resolver.Pagination
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search for dogs, most overlooked first",
		Example: `  rescue-radar search --location "Austin, TX" --size large
  rescue-radar search --location 78701 --age senior --explain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Searcher().Search(cmd.Context(), criteria, page)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&criteria.Location, "location", "", "zip code, \"City, ST\" or state")
	f.StringVar(&criteria.Breed, "breed", "", "breed name; typos are corrected")
	f.StringVar(&criteria.Age, "age", "", "baby, young, adult or senior")
	f.StringVar(&criteria.Size, "size", "", "small, medium, large or extra large")
	f.StringVar(&criteria.Gender, "gender", "", "male or female")
	f.BoolVar(&criteria.GoodWithChildren, "good-with-children", false, "only dogs known to be good with children")
	f.BoolVar(&criteria.GoodWithDogs, "good-with-dogs", false, "only dogs known to be good with dogs")
	f.BoolVar(&criteria.GoodWithCats, "good-with-cats", false, "only dogs known to be good with cats")
	f.BoolVar(&criteria.SpecialNeeds, "special-needs", false, "only special needs dogs")
	f.BoolVar(&criteria.Explain, "explain", false, "include a score breakdown per dog")
	f.IntVar(&page.Page, "page", 1, "1-based page number")
	f.IntVar(&page.PageSize, "page-size", 0, "results per page (0 uses the configured default)")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one dog by provider:id or bare id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			dog, err := appInstance.Searcher().GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), dog)
		},
	}
}
