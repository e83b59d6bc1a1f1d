// Command examctl edits exams on the authoring API from the terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/apiclient"
	"github.com/stemsi/exstem-authoring/internal/composer"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/logger"
	"github.com/stemsi/exstem-authoring/internal/validator"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const usage = `Usage: examctl [flags] <command> [args]

Commands:
  login               prompt for credentials and print an API token
  show <exam-id>      print an exam as a draft
  push <draft-file>   create or update an exam from a .json/.yaml draft
  delete <exam-id>    delete an exam with its parts, questions and media

Flags:
`

func main() {
	cfg := config.Load()

	flags := flag.NewFlagSet("examctl", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	apiURL := flags.String("api", cfg.APIBaseURL, "API base URL (env API_BASE_URL)")
	token := flags.String("token", cfg.APIToken, "API token (env API_TOKEN)")
	format := flags.String("format", "yaml", "show output format: yaml or json")
	assumeYes := flags.Bool("yes", false, "Do not ask before deleting")
	verbose := flags.Bool("v", false, "Verbose logging")
	_ = flags.Parse(os.Args[1:])

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log := logger.New(os.Stderr, level, "pretty")
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(strings.TrimRight(*apiURL, "/"),
		apiclient.WithToken(*token),
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithRetries(cfg.APIRetries),
		apiclient.WithLogger(log),
	)

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "login":
		err = runLogin(ctx, client, os.Stdin, os.Stdout)
	case "show":
		err = requireArg(args, "show", func(arg string) error {
			return runShow(ctx, client, log, arg, *format, os.Stdout)
		})
	case "push":
		err = requireArg(args, "push", func(arg string) error {
			return runPush(ctx, client, log, arg, confirmDeletes(os.Stdin, *assumeYes), os.Stdout)
		})
	case "delete":
		err = requireArg(args, "delete", func(arg string) error {
			return runDelete(ctx, client, log, arg, os.Stdin, *assumeYes, os.Stdout)
		})
	default:
		flags.Usage()
		os.Exit(2)
	}

	if err != nil {
		var partial *composer.PartialSaveError
		if !errors.As(err, &partial) {
			fmt.Fprintln(os.Stderr, "examctl:", err)
		}
		if apiclient.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "examctl: run `examctl login` and pass the token with -token or API_TOKEN")
		}
		os.Exit(1)
	}
}

func requireArg(args []string, command string, run func(string) error) error {
	if len(args) < 2 {
		return fmt.Errorf("%s needs an argument", command)
	}
	return run(args[1])
}

func runLogin(ctx context.Context, client *apiclient.Client, in *os.File, out io.Writer) error {
	reader := bufio.NewReader(in)
	fmt.Fprint(os.Stderr, "Email: ")
	email, _ := reader.ReadString('\n')

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	resp, err := client.Login(ctx, strings.TrimSpace(email), string(password))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Logged in as %s (%s)\n", resp.Admin.Name, strings.Join(resp.Permissions, ", "))
	fmt.Fprintln(out, resp.Token)
	return nil
}

func runDelete(ctx context.Context, client *apiclient.Client, log zerolog.Logger, arg string, in *os.File, assumeYes bool, out io.Writer) error {
	id, err := parseExamID(arg)
	if err != nil {
		return err
	}

	m := composer.NewManager(client, composer.WithLogger(log))
	exam, err := m.Load(ctx, id)
	if err != nil {
		return err
	}
	questions := 0
	for _, p := range exam.Parts {
		questions += len(p.Questions)
	}

	prompt := fmt.Sprintf("Delete exam %q with %d parts and %d questions?", exam.Title, len(exam.Parts), questions)
	if !assumeYes && !ask(in, prompt) {
		return errAborted
	}
	if err := m.DeleteExam(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "exam %d deleted\n", id)
	return nil
}

// confirmDeletes lists what a push would remove and asks before going on.
func confirmDeletes(in *os.File, assumeYes bool) func([]deletion) bool {
	return func(plan []deletion) bool {
		fmt.Fprintln(os.Stderr, "The draft omits:")
		for _, d := range plan {
			fmt.Fprintf(os.Stderr, "  %s\n", d)
		}
		return assumeYes || ask(in, "Delete them?")
	}
}

func ask(in *os.File, question string) bool {
	if !term.IsTerminal(int(in.Fd())) {
		fmt.Fprintln(os.Stderr, "examctl: stdin is not a terminal, pass -yes to confirm")
		return false
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func parseExamID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid exam id %q", arg)
	}
	return id, nil
}

func runShow(ctx context.Context, client *apiclient.Client, log zerolog.Logger, arg, format string, out io.Writer) error {
	id, err := parseExamID(arg)
	if err != nil {
		return err
	}

	m := composer.NewManager(client, composer.WithLogger(log))
	exam, err := m.Load(ctx, id)
	if err != nil {
		return err
	}
	return writeDraft(out, draftFromExam(exam), format)
}

func writeDraft(out io.Writer, d *draftExam, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

func runPush(ctx context.Context, client *apiclient.Client, log zerolog.Logger, path string, confirm func([]deletion) bool, out io.Writer) error {
	d, err := readDraft(path)
	if err != nil {
		return err
	}

	m := composer.NewManager(client, composer.WithLogger(log), composer.WithSkipUnchanged())
	if d.ID != 0 {
		if _, err := m.Load(ctx, d.ID); err != nil {
			return err
		}
	} else {
		m.NewExam()
	}

	a := &applier{m: m, baseDir: filepath.Dir(path), log: log, confirm: confirm}
	if err := a.apply(ctx, d); err != nil {
		return err
	}

	res, err := m.Save(ctx)
	if res != nil {
		printResult(out, res)
	}
	return err
}

func printResult(out io.Writer, res *composer.SaveResult) {
	id := "?"
	if res.Exam != nil {
		id = res.Exam.ID.String()
	}
	fmt.Fprintf(out, "exam %s: %d created, %d updated, %d unchanged, %d deleted\n",
		id, res.Created, res.Updated, res.Skipped, res.Deleted)
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(out, "failed: %s\n", f)
	}
}
