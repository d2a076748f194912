package pgrst

import (
	"encoding/json"
	"fmt"

	"github.com/edgeflare/dataprovider/pkg/auth"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/spf13/cobra"
)

func newCallCmd(a *app) *cobra.Command {
	var params, user, password string

	cmd := &cobra.Command{
		Use:   "call <operation> <resource>",
		Short: "Run an operation against the configured PostgREST API and print the result",
		Example: `  pgrst call getList posts --params '{"sort":{"field":"id","order":"DESC"}}'
  pgrst call getOne contacts --params '{"id":"[1,\"ada@example.com\"]"}' --user ada@example.com --password secret`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := parseOperation(args[0])
			if err != nil {
				return err
			}

			var transport provider.Transport = a.newClient()
			if user != "" {
				authProvider := a.newAuth(transport)
				if err := authProvider.Login(cmd.Context(), user, password); err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				transport = &auth.BearerTransport{Next: transport, Auth: authProvider}
			}

			result, err := a.newProvider(transport).Dispatch(cmd.Context(), op, args[1], []byte(params))
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "{}", "operation params as JSON")
	cmd.Flags().StringVarP(&user, "user", "u", "", "log in with this email before the call")
	cmd.Flags().StringVar(&password, "password", "", "password for --user")
	return cmd
}
