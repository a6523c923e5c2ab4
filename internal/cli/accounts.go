package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/ctadmin/api"
)

// NewAccountsCommand creates the accounts command group.
func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage copy-trade accounts",
	}
	cmd.AddCommand(
		newAccountsListCommand(rootOpts),
		newAccountsGetCommand(rootOpts),
		newAccountsCreateCommand(rootOpts),
		newAccountsUpdateCommand(rootOpts),
		newAccountsStatusCommand(rootOpts),
		newAccountsDeleteCommand(rootOpts),
		newAccountsRevealCommand(rootOpts),
		newAccountsRotateCommand(rootOpts),
	)
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, inputError(fmt.Sprintf("invalid account id %q", raw))
	}
	return id, nil
}

func newAccountsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		status string
		opts   api.ListOptions
	)
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				if status != "" {
					s, err := api.ParseAccountStatus(status)
					if err != nil {
						return err
					}
					opts.Status = s
				}
				accounts, err := inv.client.Accounts().List(ctx, opts)
				if err != nil {
					return err
				}
				return inv.out.Success(accounts, func(w io.Writer) error {
					return renderAccountTable(w, accounts)
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only accounts in this status")
	cmd.Flags().StringVar(&opts.Search, "search", "", "match buyer name")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "skip this many accounts")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, fmt.Sprintf("return at most this many accounts (max %d)", api.MaxListLimit))
	return cmd
}

func renderAccountTable(w io.Writer, accounts []api.Account) error {
	if len(accounts) == 0 {
		_, err := fmt.Fprintln(w, "No accounts")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNUMBER\tSERVER\tBUYER\tSTATUS\tCOPIES\tPURCHASED\tEXPIRES")
	for _, a := range accounts {
		expires := "-"
		if a.ExpiryDate != nil {
			expires = a.ExpiryDate.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			a.ID, a.AccountNumber, a.Server, a.BuyerName, a.Status,
			a.CopyCount, a.MaxCopies, a.PurchaseDate, expires)
	}
	return tw.Flush()
}

func renderAccount(w io.Writer, a api.Account) error {
	tw := newTable(w)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}
	row("ID", strconv.FormatInt(a.ID, 10))
	row("Account", a.AccountNumber)
	row("Password", a.AccountPassword)
	row("Server", a.Server)
	row("Buyer", a.BuyerName)
	row("Email", deref(a.BuyerEmail))
	row("Phone", deref(a.BuyerPhone))
	row("Notes", deref(a.BuyerNotes))
	row("Status", string(a.Status))
	row("Copies", fmt.Sprintf("%d/%d", a.CopyCount, a.MaxCopies))
	row("Purchased", a.PurchaseDate.String())
	if a.ExpiryDate != nil {
		row("Expires", a.ExpiryDate.String())
	}
	row("Price", decimal(a.PurchasePrice))
	row("Margin", decimal(a.MarginSize))
	row("Phase 1", phase(a.Phase1Target, a.Phase1Status))
	row("Phase 2", phase(a.Phase2Target, a.Phase2Status))
	row("Created", a.CreatedAt.Local().Format(time.DateTime))
	if a.UpdatedAt != nil {
		row("Updated", a.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decimal(d *api.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func phase(target *api.Decimal, status *string) string {
	parts := make([]string, 0, 2)
	if t := decimal(target); t != "" {
		parts = append(parts, "target "+t)
	}
	if s := deref(status); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func newAccountsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show one account",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				a, err := inv.client.Accounts().Get(ctx, id)
				if err != nil {
					return err
				}
				return inv.out.Success(a, func(w io.Writer) error { return renderAccount(w, a) })
			})
		},
	}
}

// accountFlags binds the editable account fields. Only flags the user set
// end up in an update.
type accountFlags struct {
	number, password, server, buyer string
	email, phone, notes             string
	purchaseDate, expiryDate        string
	price, margin                   string
	status                          string
	maxCopies, copyCount            int
	phase1Target, phase1Status      string
	phase2Target, phase2Status      string
}

func (f *accountFlags) bind(fs *pflag.FlagSet, update bool) {
	fs.StringVar(&f.number, "number", "", "trading account number")
	fs.StringVar(&f.password, "account-password", "", "trading account password")
	fs.StringVar(&f.server, "server", "", "broker server")
	fs.StringVar(&f.buyer, "buyer", "", "buyer name")
	fs.StringVar(&f.email, "email", "", "buyer email")
	fs.StringVar(&f.phone, "phone", "", "buyer phone")
	fs.StringVar(&f.notes, "notes", "", "buyer notes")
	fs.StringVar(&f.purchaseDate, "purchase-date", "", "purchase date (YYYY-MM-DD, default today)")
	fs.StringVar(&f.expiryDate, "expiry-date", "", "expiry date (YYYY-MM-DD)")
	fs.StringVar(&f.price, "price", "", "purchase price")
	fs.StringVar(&f.margin, "margin", "", "margin size")
	fs.StringVar(&f.status, "status", "", "account status")
	fs.IntVar(&f.maxCopies, "max-copies", 0, "maximum copies")
	fs.StringVar(&f.phase1Target, "phase1-target", "", "phase 1 target")
	fs.StringVar(&f.phase1Status, "phase1-status", "", "phase 1 status")
	fs.StringVar(&f.phase2Target, "phase2-target", "", "phase 2 target")
	fs.StringVar(&f.phase2Status, "phase2-status", "", "phase 2 status")
	if update {
		fs.IntVar(&f.copyCount, "copy-count", 0, "copies in use")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalDecimal(raw string) (*api.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := api.ParseDecimal(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalDate(raw string) (*api.Date, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := api.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (f *accountFlags) create(now time.Time) (api.AccountCreate, error) {
	in := api.AccountCreate{
		AccountNumber:   f.number,
		AccountPassword: f.password,
		Server:          f.server,
		BuyerName:       f.buyer,
		BuyerEmail:      optional(f.email),
		BuyerPhone:      optional(f.phone),
		BuyerNotes:      optional(f.notes),
		MaxCopies:       f.maxCopies,
		Phase1Status:    optional(f.phase1Status),
		Phase2Status:    optional(f.phase2Status),
		PurchaseDate:    api.DateOf(now),
	}
	var err error
	if f.purchaseDate != "" {
		if in.PurchaseDate, err = api.ParseDate(f.purchaseDate); err != nil {
			return in, err
		}
	}
	if in.ExpiryDate, err = optionalDate(f.expiryDate); err != nil {
		return in, err
	}
	if f.status != "" {
		if in.Status, err = api.ParseAccountStatus(f.status); err != nil {
			return in, err
		}
	}
	for _, d := range []struct {
		raw string
		dst **api.Decimal
	}{
		{f.price, &in.PurchasePrice},
		{f.margin, &in.MarginSize},
		{f.phase1Target, &in.Phase1Target},
		{f.phase2Target, &in.Phase2Target},
	} {
		if *d.dst, err = optionalDecimal(d.raw); err != nil {
			return in, err
		}
	}
	return in, in.Validate()
}

func (f *accountFlags) update(fs *pflag.FlagSet) (api.AccountUpdate, error) {
	var in api.AccountUpdate
	changed := fs.Changed
	set := func(name, v string) *string {
		if !changed(name) {
			return nil
		}
		return &v
	}
	in.AccountNumber = set("number", f.number)
	in.AccountPassword = set("account-password", f.password)
	in.Server = set("server", f.server)
	in.BuyerName = set("buyer", f.buyer)
	in.BuyerEmail = set("email", f.email)
	in.BuyerPhone = set("phone", f.phone)
	in.BuyerNotes = set("notes", f.notes)
	in.Phase1Status = set("phase1-status", f.phase1Status)
	in.Phase2Status = set("phase2-status", f.phase2Status)
	if changed("max-copies") {
		in.MaxCopies = &f.maxCopies
	}
	if changed("copy-count") {
		in.CopyCount = &f.copyCount
	}

	var err error
	if changed("status") {
		s, err := api.ParseAccountStatus(f.status)
		if err != nil {
			return in, err
		}
		in.Status = &s
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  **api.Date
	}{
		{"purchase-date", f.purchaseDate, &in.PurchaseDate},
		{"expiry-date", f.expiryDate, &in.ExpiryDate},
	} {
		if changed(d.name) {
			if *d.dst, err = optionalDate(d.raw); err != nil {
				return in, err
			}
		}
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  **api.Decimal
	}{
		{"price", f.price, &in.PurchasePrice},
		{"margin", f.margin, &in.MarginSize},
		{"phase1-target", f.phase1Target, &in.Phase1Target},
		{"phase2-target", f.phase2Target, &in.Phase2Target},
	} {
		if changed(d.name) {
			if *d.dst, err = optionalDecimal(d.raw); err != nil {
				return in, err
			}
		}
	}
	if in == (api.AccountUpdate{}) {
		return in, inputError("nothing to update: set at least one field flag")
	}
	return in, in.Validate()
}

func newAccountsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var f accountFlags
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Register a new account",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				in, err := f.create(time.Now())
				if err != nil {
					return err
				}
				a, err := inv.client.Accounts().Create(ctx, in)
				if err != nil {
					return err
				}
				return inv.out.Success(a, func(w io.Writer) error {
					fmt.Fprintf(w, "Created account %d\n", a.ID)
					return renderAccount(w, a)
				})
			})
		},
	}
	f.bind(cmd.Flags(), false)
	return cmd
}

func newAccountsUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var f accountFlags
	cmd := &cobra.Command{
		Use:           "update <id>",
		Short:         "Change account fields",
		Long:          "Change the account fields given as flags; everything else is left as is.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				in, err := f.update(cmd.Flags())
				if err != nil {
					return err
				}
				a, err := inv.client.Accounts().Update(ctx, id, in)
				if err != nil {
					return err
				}
				return inv.out.Success(a, func(w io.Writer) error { return renderAccount(w, a) })
			})
		},
	}
	f.bind(cmd.Flags(), true)
	return cmd
}

func newAccountsStatusCommand(rootOpts *RootOptions) *cobra.Command {
	valid := make([]string, len(api.AccountStatuses))
	for i, s := range api.AccountStatuses {
		valid[i] = string(s)
	}
	return &cobra.Command{
		Use:           "status <id> <status>",
		Short:         "Move an account to another status",
		Long:          "Move an account to another status: " + strings.Join(valid, ", ") + ".",
		Args:          cobra.ExactArgs(2),
		ValidArgs:     valid,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status, err := api.ParseAccountStatus(args[1])
				if err != nil {
					return err
				}
				a, err := inv.client.Accounts().UpdateStatus(ctx, id, status)
				if err != nil {
					return err
				}
				return inv.out.Success(a, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Account %d is now %s\n", a.ID, a.Status)
					return err
				})
			})
		},
	}
}

func newAccountsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete an account",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := inv.client.Accounts().Delete(ctx, id); err != nil {
					return err
				}
				return inv.out.Success(map[string]int64{"deleted": id}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted account %d\n", id)
					return err
				})
			})
		},
	}
}

func newAccountsRevealCommand(rootOpts *RootOptions) *cobra.Command {
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "reveal <id>",
		Short: "Show an account password",
		Long: `Decrypt and print an account password. The backend re-checks your own
password, read from stdin with --password-stdin or from $CTADMIN_PASSWORD.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				adminPassword, err := readPassword(cmd.InOrStdin(), passwordStdin)
				if err != nil {
					return err
				}
				rev, err := inv.client.Accounts().RevealPassword(ctx, id, adminPassword)
				if err != nil {
					return err
				}
				return inv.out.Success(rev, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s\n(visible until %s)\n",
						rev.AccountPassword, rev.ExpiresAt().Local().Format(time.TimeOnly))
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read your password from the first line of stdin")
	return cmd
}

func newAccountsRotateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <id>",
		Short: "Replace an account password",
		Long: fmt.Sprintf(`Replace an account password with the first line of stdin
(at least %d characters).`, api.MinPasswordLength),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				newPassword, err := readPassword(cmd.InOrStdin(), true)
				if err != nil {
					return err
				}
				a, err := inv.client.Accounts().RotatePassword(ctx, id, newPassword)
				if err != nil {
					return err
				}
				return inv.out.Success(a, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Password of account %d replaced\n", a.ID)
					return err
				})
			})
		},
	}
}
