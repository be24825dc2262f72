/*
Package cli provides the helpers shared by the tollgate subcommands: output
formatting, error types with exit codes, and signal handling.

Output Formatting:

Commands render either arbitrary values (JSON) or a Table (text, JSON, CSV):

	table := &cli.Table{Headers: []string{"ID", "NAME"}}
	table.Append(key.ID, key.Name)
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
