package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/magabrotheeeer/wa-connector-console/internal/app/console"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/jwt"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

var stdout io.Writer = os.Stdout

var errSessionEnded = errors.New("session ended, log in again")

type usageError string

func (e usageError) Error() string { return string(e) }

type command struct {
	view view.Name
	run  func(ctx context.Context, d *console.Deps, args []string) error
}

var commands = map[string]command{
	"login":           {view: view.Login, run: runLogin},
	"register":        {view: view.Register, run: runRegister},
	"forgot-password": {view: view.ForgotPassword, run: runForgotPassword},
	"logout":          {view: view.Dashboard, run: runLogout},
	"whoami":          {view: view.Dashboard, run: runWhoami},
	"sub-accounts":    {view: view.SubAccounts, run: runSubAccounts},
	"status":          {view: view.SubAccountDetail, run: runStatus},
	"watch":           {view: view.SubAccountDetail, run: runWatch},
	"connect":         {view: view.SubAccountDetail, run: runConnect},
	"disconnect":      {view: view.SubAccountDetail, run: runDisconnect},
	"send":            {view: view.SubAccountDetail, run: runSend},
	"ghl":             {view: view.Billing, run: runGHL},
	"billing":         {view: view.Billing, run: runBilling},
	"admin":           {view: view.Admin, run: runAdmin},
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireSession восстанавливает сессию из сохранённого токена.
func requireSession(ctx context.Context, d *console.Deps, role models.Role) (*models.UserProfile, error) {
	if _, err := d.Session.Resolve(ctx); err != nil {
		return nil, err
	}
	return d.Session.Gate(role)
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return usageError(fmt.Sprintf("%s: %v", fs.Name(), err))
	}
	return nil
}

// subcommand отделяет действие от флагов: "list -x" → "list", ["-x"].
func subcommand(args []string, def string) (string, []string) {
	if len(args) == 0 || len(args[0]) == 0 || args[0][0] == '-' {
		return def, args
	}
	return args[0], args[1:]
}

func runLogin(ctx context.Context, d *console.Deps, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CONSOLE_PASSWORD"), "account password")
	if err := parse(fs, args); err != nil {
		return err
	}

	user, err := d.Session.Login(ctx, models.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	return printJSON(user)
}

func runRegister(ctx context.Context, d *console.Deps, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var req models.RegisterRequest
	fs.StringVar(&req.Name, "name", "", "full name")
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Password, "password", os.Getenv("CONSOLE_PASSWORD"), "account password")
	fs.StringVar(&req.CompanyName, "company", "", "company name")
	if err := parse(fs, args); err != nil {
		return err
	}

	user, err := d.Session.Register(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(user)
}

func runForgotPassword(ctx context.Context, d *console.Deps, args []string) error {
	fs := flag.NewFlagSet("forgot-password", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := d.Session.ForgotPassword(ctx, *email); err != nil {
		return err
	}
	_, err := fmt.Fprintln(stdout, "password reset email requested")
	return err
}

func runLogout(_ context.Context, d *console.Deps, _ []string) error {
	d.Session.Logout()
	_, err := fmt.Fprintln(stdout, "logged out")
	return err
}

func runWhoami(ctx context.Context, d *console.Deps, _ []string) error {
	user, err := requireSession(ctx, d, models.RoleCustomer)
	if err != nil {
		return err
	}

	out := struct {
		*models.UserProfile
		TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	}{UserProfile: user}

	if token := d.Session.Snapshot().Token; token != "" {
		if claims, err := jwt.Inspect(token); err == nil {
			if exp, ok := claims.ExpiresAtTime(); ok {
				out.TokenExpiresAt = &exp
			}
		}
	}
	return printJSON(out)
}

func runSubAccounts(ctx context.Context, d *console.Deps, args []string) error {
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	action, rest := subcommand(args, "list")
	fs := flag.NewFlagSet("sub-accounts "+action, flag.ContinueOnError)
	id := fs.String("id", "", "sub-account id")
	name := fs.String("name", "", "sub-account name")
	if err := parse(fs, rest); err != nil {
		return err
	}

	switch action {
	case "list":
		list, err := d.SubAccounts.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	case "get":
		sa, err := d.SubAccounts.Get(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(sa)
	case "create":
		sa, err := d.SubAccounts.Create(ctx, models.CreateSubAccountRequest{Name: *name})
		if err != nil {
			return err
		}
		return printJSON(sa)
	case "delete":
		if *id == "" {
			return usageError("sub-accounts delete: -id is required")
		}
		return d.SubAccounts.Delete(ctx, *id)
	}
	return usageError("sub-accounts: unknown action " + action)
}

func subAccountFlag(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, fs.String("id", "", "sub-account id")
}

func runStatus(ctx context.Context, d *console.Deps, args []string) error {
	fs, id := subAccountFlag("status")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("status: -id is required")
	}
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	st, err := d.WhatsApp.Status(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(st.View())
}

// follow печатает применённые состояния, пока until не вернёт true,
// сессия не закончится или ctx не будет отменён.
func follow(ctx context.Context, d *console.Deps, states <-chan models.ConnectionState, until func(models.ConnectionState) bool) error {
	sessions, unsubscribe := d.Session.Subscribe()
	defer unsubscribe()
	if !d.Session.Snapshot().Authenticated() {
		return errSessionEnded
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-sessions:
			if !s.Authenticated() {
				return errSessionEnded
			}
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if err := printJSON(st.View()); err != nil {
				return err
			}
			if until != nil && until(st) {
				return nil
			}
		}
	}
}

func runWatch(ctx context.Context, d *console.Deps, args []string) error {
	fs, id := subAccountFlag("watch")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("watch: -id is required")
	}
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	p := d.NewPoller(*id)
	states, unsubscribe := p.Subscribe()
	defer unsubscribe()
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	return follow(ctx, d, states, nil)
}

func runConnect(ctx context.Context, d *console.Deps, args []string) error {
	fs, id := subAccountFlag("connect")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("connect: -id is required")
	}
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	p := d.NewPoller(*id)
	states, unsubscribe := p.Subscribe()
	defer unsubscribe()
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	if err := p.Connect(ctx); err != nil {
		return err
	}
	// QR печатается, пока его не отсканируют
	return follow(ctx, d, states, func(st models.ConnectionState) bool {
		return st.Status == models.StatusConnected
	})
}

func runDisconnect(ctx context.Context, d *console.Deps, args []string) error {
	fs, id := subAccountFlag("disconnect")
	yes := fs.Bool("yes", false, "confirm disconnect")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("disconnect: -id is required")
	}
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	p := d.NewPoller(*id)
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	if err := p.Disconnect(ctx, *yes); err != nil {
		return err
	}
	_, err := fmt.Fprintln(stdout, "disconnected")
	return err
}

func runSend(ctx context.Context, d *console.Deps, args []string) error {
	fs, id := subAccountFlag("send")
	var req models.SendMessageRequest
	fs.StringVar(&req.To, "to", "", "recipient phone number")
	fs.StringVar(&req.Message, "message", "", "message text")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("send: -id is required")
	}
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	st, err := d.WhatsApp.Status(ctx, *id)
	if err != nil {
		return err
	}
	if err := d.WhatsApp.Send(ctx, *id, st.Status, req); err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, "message sent")
	return err
}

func runGHL(ctx context.Context, d *console.Deps, args []string) error {
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	action, rest := subcommand(args, "status")
	fs := flag.NewFlagSet("ghl "+action, flag.ContinueOnError)
	id := fs.String("id", "", "sub-account id")
	location := fs.String("location", "", "CRM location id")
	if err := parse(fs, rest); err != nil {
		return err
	}

	switch action {
	case "status":
		st, err := d.GHL.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	case "locations":
		list, err := d.GHL.Locations(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	case "link":
		return d.GHL.Link(ctx, *id, *location)
	case "unlink":
		return d.GHL.Unlink(ctx, *id)
	}
	return usageError("ghl: unknown action " + action)
}

func runBilling(ctx context.Context, d *console.Deps, args []string) error {
	if _, err := requireSession(ctx, d, models.RoleCustomer); err != nil {
		return err
	}

	action, rest := subcommand(args, "portal")
	fs := flag.NewFlagSet("billing "+action, flag.ContinueOnError)
	plan := fs.String("plan", "", "plan type")
	id := fs.String("id", "", "sub-account id")
	if err := parse(fs, rest); err != nil {
		return err
	}

	var (
		u   string
		err error
	)
	switch action {
	case "portal":
		u, err = d.Billing.Portal(ctx)
	case "subscribe":
		u, err = d.Billing.Subscribe(ctx, *plan)
	case "checkout":
		u, err = d.Billing.Checkout(ctx, *id)
	default:
		return usageError("billing: unknown action " + action)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, u)
	return err
}

func runAdmin(ctx context.Context, d *console.Deps, args []string) error {
	if _, err := requireSession(ctx, d, models.RoleAdmin); err != nil {
		return err
	}

	action, _ := subcommand(args, "stats")
	switch action {
	case "stats":
		st, err := d.Admin.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	case "customers":
		list, err := d.Admin.Customers(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	case "sub-accounts":
		list, err := d.Admin.SubAccounts(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	}
	return usageError("admin: unknown action " + action)
}
