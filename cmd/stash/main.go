package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"stash/internal/client"
)

const usage = `usage: stash <command> [arguments]

Commands:
  login <username>        exchange a password for an access token
  upload <file> [...]     upload one or more files
  list [-q query]         list your uploaded files
  delete <filename> [...] delete files by their server filename
  rotate                  replace the current token with a fresh one

Environment:
  STASH_SERVER   server base URL (default http://localhost:8080)
  STASH_TOKEN    access token (all commands except login)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	server := os.Getenv("STASH_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	token := os.Getenv("STASH_TOKEN")

	ctx := context.Background()
	var err error

	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "login":
		err = runLogin(ctx, server, args)
	case "upload":
		err = runUpload(ctx, server, token, args)
	case "list":
		err = runList(ctx, server, token, args)
	case "delete":
		err = runDelete(ctx, server, token, args)
	case "rotate":
		err = runRotate(ctx, server, token)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runLogin(ctx context.Context, server string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stash login <username>")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	var password string
	if _, err := fmt.Scanln(&password); err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	result, err := client.New(server, "").Login(ctx, args[0], password)
	if err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", result.Username)
	fmt.Printf("export STASH_TOKEN=%s\n", result.Token)
	return nil
}

func runUpload(ctx context.Context, server, token string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: stash upload <file> [...]")
	}
	c := client.New(server, token)

	for _, path := range args {
		result, err := c.Upload(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if result.Deduplicated {
			fmt.Printf("%s: already stored -> %s\n", path, result.URL)
		} else {
			fmt.Printf("%s -> %s\n", path, result.URL)
		}
	}
	return nil
}

func runList(ctx context.Context, server, token string, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	query := fs.String("q", "", "filter by original filename substring")
	limit := fs.Int("limit", 0, "page size (server default when 0)")
	all := fs.Bool("all", false, "follow pagination to the end")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := client.New(server, token)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tORIGINAL\tSIZE\tUPLOADED\tURL")

	cursor := ""
	for {
		page, err := c.List(ctx, *query, cursor, *limit)
		if err != nil {
			return err
		}
		for _, f := range page.Files {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				f.Filename, f.OriginalName, f.Size,
				f.UploadedAt.Format("2006-01-02 15:04"), f.URL)
		}
		cursor = page.NextCursor
		if cursor == "" || !*all {
			break
		}
	}
	return w.Flush()
}

func runDelete(ctx context.Context, server, token string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: stash delete <filename> [...]")
	}
	c := client.New(server, token)

	for _, filename := range args {
		if err := c.Delete(ctx, filename); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		fmt.Printf("deleted %s\n", filename)
	}
	return nil
}

func runRotate(ctx context.Context, server, token string) error {
	fresh, err := client.New(server, token).RotateToken(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Token rotated; the old token no longer works.")
	fmt.Printf("export STASH_TOKEN=%s\n", fresh)
	return nil
}
