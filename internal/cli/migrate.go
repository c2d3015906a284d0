package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/park285/liarslock/internal/archive"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the match archive tables in DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := cmd.OutOrStdout().Write([]byte(archive.Schema))
				return err
			}
			if rootOpts.Config.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			ctx := contextOf(cmd)
			pg, err := archive.OpenPostgres(ctx, rootOpts.Config.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
			return emit(cmd, rootOpts.Format, map[string]string{"status": "ok"}, "schema applied")
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
