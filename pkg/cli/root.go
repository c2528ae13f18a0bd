package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/users"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// UserStore is the account storage the commands write to
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*auth.Identity, error)
	GetByEmail(ctx context.Context, email string) (*auth.Identity, error)
	Create(ctx context.Context, req *users.CreateUserRequest) (*auth.Identity, error)
	SetPassword(ctx context.Context, id int64, password string) error
}

// MemberStore manages project membership
type MemberStore interface {
	GetProject(ctx context.Context, id int64) (*projects.Project, error)
	AddMember(ctx context.Context, projectID, userID int64) error
	RemoveMember(ctx context.Context, projectID, userID int64) error
}

// Invalidator drops cached membership decisions
type Invalidator interface {
	Invalidate(ctx context.Context, projectID, userID int64) error
}

// Env holds the connections a command runs against
//
// Cache is nil when no shared cache is configured. Running servers then keep
// their own answers for up to CacheTTL.
type Env struct {
	Users      UserStore
	Members    MemberStore
	Cache      Invalidator
	CacheTTL   time.Duration
	Issuer     *auth.Issuer
	DefaultTTL time.Duration
	Audit      audit.Logger
	Close      func() error
}

// Opener connects to the backing services. It is called once per command so
// that usage output works without a database.
type Opener func(ctx context.Context) (*Env, error)

type app struct {
	open    Opener
	in      io.Reader
	out     io.Writer
	timeout time.Duration
}

// NewRootCommand creates the root command
func NewRootCommand(open Opener, in io.Reader, out io.Writer) *Command {
	a := &app{open: open, in: in, out: out, timeout: time.Minute}

	root := &Command{
		Name:        "workbench-admin",
		Description: "Workbench - account and access maintenance",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("workbench-admin", flag.ContinueOnError),
	}

	root.Subcommands["create-user"] = a.newCreateUserCommand()
	root.Subcommands["reset-password"] = a.newResetPasswordCommand()
	root.Subcommands["grant"] = a.newGrantCommand()
	root.Subcommands["revoke"] = a.newRevokeCommand()
	root.Subcommands["issue-token"] = a.newIssueTokenCommand()

	return root
}

// Execute runs the command against os.Args
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the subcommand named by args[0]
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage(os.Stdout)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(os.Stdout)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		err := subcmd.Run(args[1:])
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [flags]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// with opens the environment, runs fn and closes it again
func (a *app) with(fn func(ctx context.Context, env *Env) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	env, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if env.Close != nil {
		defer env.Close()
	}
	if env.Audit == nil {
		env.Audit = audit.NoopLogger{}
	}
	return fn(ctx, env)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
