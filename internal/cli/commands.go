// Package cli implements the interactive operator console: account
// administration, session inspection and the live server directory.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/battlespy-project/battlespy/internal/config"
	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/login"
	"github.com/battlespy-project/battlespy/internal/master"
)

// CLI provides the interactive operator console.
type CLI struct {
	cfg      *config.Config
	accounts *db.AccountStore
	login    *login.Server
	master   *master.Server
	shutdown func()
}

// NewCLI creates a console bound to the running services. shutdown is
// invoked by the quit command.
func NewCLI(cfg *config.Config, accounts *db.AccountStore, loginSrv *login.Server,
	masterSrv *master.Server, shutdown func()) *CLI {
	return &CLI{
		cfg:      cfg,
		accounts: accounts,
		login:    loginSrv,
		master:   masterSrv,
		shutdown: shutdown,
	}
}

// Start begins the interactive console loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nBattleSpy console ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("Cmd > ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if c.execute(cmd, args, scanner) {
			return
		}
	}
}

// execute processes a single console command. Returns true when the console
// should exit.
func (c *CLI) execute(cmd string, args []string, scanner *bufio.Scanner) bool {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "connections":
		processing, authenticated := c.login.Counts()
		fmt.Printf("Total Connections: %d (%d authenticated, %d processing)\n",
			processing+authenticated, authenticated, processing)
	case "accounts":
		count, err := c.accounts.NumAccounts()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			break
		}
		fmt.Printf("Total Accounts: %d\n", count)
	case "sessions":
		c.printSessions()
	case "servers":
		c.printServers()
	case "fetch":
		c.cmdFetch(args)
	case "create":
		c.cmdCreate(args)
	case "delete":
		c.cmdDelete(args, scanner)
	case "setpid":
		c.cmdSetPID(args)
	case "ban":
		c.cmdBan(args, true)
	case "unban":
		c.cmdBan(args, false)
	case "kick":
		c.cmdKick(args)
	case "stop", "quit", "exit", "q":
		fmt.Println("Shutting down local sockets...")
		c.shutdown()
		return true
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  connections                  Show live connection counts")
	fmt.Println("  accounts                     Show the total account count")
	fmt.Println("  sessions                     List authenticated sessions")
	fmt.Println("  servers                      List game servers in the directory")
	fmt.Println("  fetch <nick>                 Show one account")
	fmt.Println("  create <nick> <pass> <email> Create an account")
	fmt.Println("  delete <nick>                Delete an account")
	fmt.Println("  setpid <nick> <pid>          Reassign an account's player id")
	fmt.Println("  ban <nick> / unban <nick>    Toggle a permanent ban")
	fmt.Println("  kick <pid>                   Disconnect an online session")
	fmt.Println("  quit                         Shutdown the services")
	fmt.Println("  help                         Show this help message")
	fmt.Println()
}

// printSessions lists the authenticated sessions in a table.
func (c *CLI) printSessions() {
	sessions := c.login.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No authenticated sessions.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"PID", "Nick", "Remote", "Connected"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, session := range sessions {
		tw.Append([]string{
			strconv.Itoa(session.AccountID()),
			session.Nick(),
			session.RemoteAddr().String(),
			time.Since(session.ConnectedAt()).Round(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Println()
}

// printServers lists the live server directory in a table.
func (c *CLI) printServers() {
	servers := c.master.Registry().Snapshot()
	if len(servers) == 0 {
		fmt.Println("No game servers in the directory.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Endpoint", "Hostname", "Map", "Players", "Country", "Last Ping"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, server := range servers {
		tw.Append([]string{
			fmt.Sprintf("%s:%d", server.IP, server.HostPort),
			server.Hostname,
			server.MapName,
			fmt.Sprintf("%d/%d", server.NumPlayers, server.MaxPlayers),
			server.Country,
			time.Since(server.LastPing).Round(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) cmdFetch(args []string) {
	if len(args) != 1 {
		fmt.Println("Incorrect command format. Please type 'help' to see list of available commands.")
		return
	}

	account, err := c.accounts.GetAccount(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if account == nil {
		fmt.Printf("Account '%s' does not exist in the database.\n", args[0])
		return
	}

	fmt.Println(" - PlayerID: " + strconv.Itoa(account.ID))
	fmt.Println(" - Email: " + account.Email)
	fmt.Println(" - Country: " + account.Country)
	fmt.Printf(" - Banned: %v\n", account.Banned)
	fmt.Printf(" - Online: %v\n", account.Online)
}

func (c *CLI) cmdCreate(args []string) {
	if len(args) != 3 {
		fmt.Println("Incorrect command format. Please type 'help' to see list of available commands.")
		return
	}

	nick, password, email := args[0], args[1], args[2]

	exists, err := c.accounts.AccountExists(nick)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if exists {
		fmt.Printf("Account '%s' already exists in the database.\n", nick)
		return
	}

	if _, err := c.accounts.CreateAccount(nick, password, email, "US"); err != nil {
		fmt.Println("Error creating account!")
		return
	}
	fmt.Println("Account created successfully")
}

func (c *CLI) cmdDelete(args []string, scanner *bufio.Scanner) {
	if len(args) != 1 {
		fmt.Println("Incorrect command format. Please type 'help' to see list of available commands.")
		return
	}

	fmt.Printf("Are you sure you want to delete account '%s'? <y/n>: ", args[0])
	if !scanner.Scan() {
		return
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		if err := c.accounts.DeleteAccount(args[0]); err != nil {
			fmt.Println("Failed to remove account from database.")
			return
		}
		fmt.Println("Account deleted successfully")
	case "n", "no":
		fmt.Println("Command cancelled.")
	default:
		fmt.Println("Incorrect response. Aborting command")
	}
}

func (c *CLI) cmdSetPID(args []string) {
	if len(args) != 2 {
		fmt.Println("Incorrect command format. Please type 'help' to see list of available commands.")
		return
	}

	pid, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Println("Player ID must be numeric only!")
		return
	}

	if err := c.accounts.SetAccountID(args[0], pid); err != nil {
		fmt.Printf(" - %v\n", err)
		return
	}
	fmt.Println(" - Player ID updated successfully")
}

func (c *CLI) cmdBan(args []string, banned bool) {
	if len(args) != 1 {
		fmt.Println("Incorrect command format. Please type 'help' to see list of available commands.")
		return
	}

	if err := c.accounts.SetBanned(args[0], banned); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if banned {
		fmt.Println("Account banned.")
		if id, err := c.accounts.GetAccountID(args[0]); err == nil && id != 0 {
			c.login.Kick(id)
		}
	} else {
		fmt.Println("Account unbanned.")
	}
}

func (c *CLI) cmdKick(args []string) {
	if len(args) != 1 {
		fmt.Println("Incorrect command format. Please type 'help' to see list of available commands.")
		return
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("Player ID must be numeric only!")
		return
	}

	if c.login.Kick(pid) {
		fmt.Printf("Session %d disconnected.\n", pid)
	} else {
		fmt.Printf("No online session for player id %d.\n", pid)
	}
}
