package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/training"
)

func loginCommand(rt *runtime) *cobra.Command {
	var creds model.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readSecret(cmd.InOrStdin(), creds.Password)
			if err != nil {
				return err
			}
			creds.Password = pw
			u, err := rt.app.Auth.Login(cmd.Context(), creds).Get()
			if err != nil {
				return errors.New(errs.Message(err))
			}
			printJSON(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password ('-' reads stdin)")
	cmd.Flags().StringVar(&creds.Domain, "domain", "", "Gym domain")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func signUpCommand(rt *runtime) *cobra.Command {
	var req model.SignUp
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a student account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readSecret(cmd.InOrStdin(), req.Password)
			if err != nil {
				return err
			}
			req.Password = pw
			u, err := rt.app.Auth.SignUp(cmd.Context(), req).Get()
			if err != nil {
				return errors.New(errs.Message(err))
			}
			printJSON(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password ('-' reads stdin)")
	cmd.Flags().StringVar(&req.Domain, "domain", "", "Gym domain")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&req.UnitID, "unit", "", "Gym unit id")
	for _, f := range []string{"name", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func logoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget local credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func whoamiCommand(rt *runtime) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !remote {
				u := rt.app.Auth.CachedUser(cmd.Context())
				if u == nil {
					return errNotLoggedIn
				}
				printJSON(cmd.OutOrStdout(), u)
				return nil
			}
			u, err := rt.app.Auth.CurrentUser(cmd.Context()).Get()
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the server instead of the local cache")
	return cmd
}

// writeErr marks failures that happened after the change was already cached.
func writeErr(err error) error {
	if errors.Is(err, errs.ErrNetwork) || errors.Is(err, errs.ErrServer) || errors.Is(err, errs.ErrUnauthenticated) {
		return fmt.Errorf("saved locally, not synced: %w", err)
	}
	return err
}

// snapshot is one emission of a list read.
type snapshot[T any] struct {
	Source string `json:"source"`
	Items  []T    `json:"items"`
}

// printSnapshots prints every emission: the cached one first, then the remote one if the
// server answered.
func printSnapshots[T any](cmd *cobra.Command, ch <-chan []T) {
	sources := []string{"cache", "remote"}
	i := 0
	for items := range ch {
		printJSON(cmd.OutOrStdout(), snapshot[T]{Source: sources[min(i, 1)], Items: items})
		i++
	}
}

type listFlags struct {
	status string
	from   string
	to     string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "Only this status")
	cmd.Flags().StringVar(&f.from, "from", "", "Start date lower bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Start date upper bound (YYYY-MM-DD)")
}

func (f *listFlags) query(u model.User) (training.Query, error) {
	q := training.Query{StudentID: u.ID, Status: f.status}
	var err error
	if q.From, err = parseDay(f.from); err != nil {
		return q, err
	}
	if q.To, err = parseDay(f.to); err != nil {
		return q, err
	}
	if !q.To.IsZero() {
		q.To = q.To.Add(24*time.Hour - time.Millisecond)
	}
	return q, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad id %q: %w", s, err)
	}
	return id, nil
}

func plansCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "plans", Short: "Training plans"}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List plans: cached first, then fresh from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := rt.currentUser()
			if err != nil {
				return err
			}
			q, err := lf.query(u)
			if err != nil {
				return err
			}
			printSnapshots(cmd, rt.app.Plans.List(cmd.Context(), q))
			return nil
		},
	}
	lf.register(list)

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := rt.app.Plans.Get(cmd.Context(), id).Get()
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status <id> <ACTIVE|INACTIVE|ARCHIVED>",
		Short: "Change a plan's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := rt.app.Plans.SetStatus(cmd.Context(), id, args[1]).Get()
			if err != nil {
				return writeErr(err)
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.AddCommand(list, get, status)
	return cmd
}

func executionsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "executions", Short: "Workouts performed against plans"}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List executions: cached first, then fresh from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := rt.currentUser()
			if err != nil {
				return err
			}
			q, err := lf.query(u)
			if err != nil {
				return err
			}
			printSnapshots(cmd, rt.app.Executions.List(cmd.Context(), q))
			return nil
		},
	}
	lf.register(list)

	start := &cobra.Command{
		Use:   "start <plan-id>",
		Short: "Start a workout of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.currentUser(); err != nil {
				return err
			}
			planID, err := parseID(args[0])
			if err != nil {
				return err
			}
			plan, err := rt.app.Plans.Get(cmd.Context(), planID).Get()
			if err != nil {
				return err
			}
			res := rt.app.Executions.Start(cmd.Context(), plan)
			e, err := res.Get()
			if err != nil {
				return writeErr(err)
			}
			printJSON(cmd.OutOrStdout(), e)
			return nil
		},
	}

	var notes string
	finish := &cobra.Command{
		Use:   "finish <id>",
		Short: "Mark a workout completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := rt.app.Executions.Finish(cmd.Context(), id, notes).Get()
			if err != nil {
				return writeErr(err)
			}
			printJSON(cmd.OutOrStdout(), e)
			return nil
		},
	}
	finish.Flags().StringVar(&notes, "notes", "", "How it went")

	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Abandon a workout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := rt.app.Executions.Cancel(cmd.Context(), id).Get()
			if err != nil {
				return writeErr(err)
			}
			printJSON(cmd.OutOrStdout(), e)
			return nil
		},
	}

	cmd.AddCommand(list, start, finish, cancel)
	return cmd
}

func unitCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "unit", Short: "Selected gym unit"}

	set := &cobra.Command{
		Use:   "set <id> [name]",
		Short: "Select a unit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			if err := rt.app.Selection.Set(cmd.Context(), args[0], name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the selected unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := rt.app.Selection.Get(cmd.Context())
			if err != nil {
				return err
			}
			if sel == nil {
				return errors.New("no unit selected")
			}
			printJSON(cmd.OutOrStdout(), sel)
			return nil
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the selected unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.app.Selection.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.AddCommand(set, get, clearCmd)
	return cmd
}
