package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/busprobe/internal/dsl"
	"github.com/solatis/busprobe/internal/scenario"
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the DSL functions available in scenario values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FUNCTION\tARGS\tEXAMPLE\tDESCRIPTION")
		for _, f := range dsl.Builtins().Functions() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Name, f.Arity(), f.Example, f.Description)
		}
		return w.Flush()
	},
}

var resolvePayloadValues map[string]string

var resolveCmd = &cobra.Command{
	Use:   "resolve <expression>",
	Short: "Resolve a DSL expression and print the result",
	Example: `  busprobe resolve '$SYS_DATE_OF_FORMAT(yyyy-MM-dd)'
  busprobe resolve '$UUID_FROM_STRINGS($PAYLOAD_VALUE(id),x)' --value id=42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := scenario.New()
		for k, v := range resolvePayloadValues {
			sc.SetPayloadValue(k, v)
		}
		out, err := dsl.NewResolver(dsl.Builtins()).Resolve(args[0], sc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(functionsCmd)
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringToStringVar(&resolvePayloadValues, "value", nil, "payload value available to $PAYLOAD_VALUE (key=value, repeatable)")
}
