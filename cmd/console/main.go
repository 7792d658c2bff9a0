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
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/yigit/academydesk/internal/academy"
	"github.com/yigit/academydesk/internal/bootstrap"
	"github.com/yigit/academydesk/internal/devtools"
	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/server"
)

const usage = `usage: academydesk [-config path] <command> [flags]

commands:
  login   -email addr     authenticate and store the session token
  logout                  clear the stored session
  status                  show the current session
  fetch   -resource name  list a resource as JSON
  inspect                 serve the store inspector until interrupted
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("academydesk", flag.ContinueOnError)
	configPath := global.String("config", "", "path to the YAML configuration file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}

	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(bootstrap.ConfigPath(*configPath))
	if err != nil {
		return err
	}

	deps, err := bootstrap.BuildConsole(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer deps.Close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "login":
		return login(ctx, deps, rest, out)
	case "logout":
		if err := deps.Console.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Logged out.")
		return nil
	case "status":
		return status(ctx, deps, out)
	case "fetch":
		return fetch(ctx, deps, rest, out)
	case "inspect":
		return inspect(ctx, deps, lgr)
	}
	global.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func login(ctx context.Context, deps *bootstrap.Dependencies, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("login: -email is required")
	}

	password, err := readPassword(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	result, err := deps.Console.Login(ctx, *email, password)
	if err != nil {
		var rerr *apperrors.RemoteError
		if errors.As(err, &rerr) {
			return fmt.Errorf("login failed: %s", rerr.Message)
		}
		return err
	}
	if err := deps.Console.VerifySession(ctx); err != nil {
		return err
	}

	name := *email
	if result.User != nil && result.User.Name != "" {
		name = result.User.Name
	}
	fmt.Fprintf(out, "Logged in as %s.\n", name)
	return nil
}

// readPassword reads without echo from a terminal, or one line from a pipe
func readPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(out, "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func status(ctx context.Context, deps *bootstrap.Dependencies, out io.Writer) error {
	sess := deps.Console.State().Session
	if !sess.IsAuthenticated {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}
	if err := deps.Console.VerifySession(ctx); err != nil {
		return err
	}
	if sess.User != nil {
		fmt.Fprintf(out, "Logged in as %s <%s> (%s).\n", sess.User.Name, sess.User.Email, sess.User.Role)
		return nil
	}
	fmt.Fprintln(out, "Logged in.")
	return nil
}

func fetch(ctx context.Context, deps *bootstrap.Dependencies, args []string, out io.Writer) error {
	entities := deps.Console.Entities()
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	resource := fs.String("resource", "students", "one of: "+strings.Join(names, ", "))
	if err := fs.Parse(args); err != nil {
		return err
	}

	entity, ok := entities[*resource]
	if !ok {
		return fmt.Errorf("unknown resource %q, want one of: %s", *resource, strings.Join(names, ", "))
	}

	items, err := entity.FetchAny(ctx)
	if err != nil {
		if deps.Console.State().Session.NeedsLoginRedirect {
			_ = deps.Console.AcknowledgeRedirect()
			return fmt.Errorf("%w; run `academydesk login` again", err)
		}
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func inspect(ctx context.Context, deps *bootstrap.Dependencies, lgr zerolog.Logger) error {
	cfg := deps.Config
	inspector := devtools.New[academy.State](deps.Console.Store(), devtools.Options{
		AllowedOrigins: cfg.Inspector.AllowedOrigins,
		Gatherer:       deps.Registry,
		Logger:         &lgr,
	})

	g, ctx := errgroup.WithContext(ctx)
	inspector.Start(ctx)

	g.Go(func() error {
		return server.New("inspector", cfg.Inspector.Addr, inspector.Router(), lgr).Run(ctx)
	})

	// keep the inspector interesting: load every resource once at startup
	if deps.Console.State().Session.IsAuthenticated {
		for name, entity := range deps.Console.Entities() {
			g.Go(func() error {
				if _, err := entity.FetchAny(ctx); err != nil {
					lgr.Warn().Err(err).Str("resource", name).Msg("Initial fetch failed")
				}
				return nil
			})
		}
	}

	return g.Wait()
}
