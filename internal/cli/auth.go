package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/existflow/duetask/internal/friends"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Manage authentication with the sync server.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the sync server",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from the sync server",
	RunE:  runLogout,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account on the sync server",
	RunE:  runRegister,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is logged in",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(authStatusCmd)

	loginCmd.Flags().String("email", "", "Account email (prompted when empty)")
}

func readPassword(prompt string) string {
	fmt.Print(prompt)
	passwordBytes, _ := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return string(passwordBytes)
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reader := bufio.NewReader(os.Stdin)

	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		fmt.Print("Email: ")
		email, _ = readLine(reader)
	}
	password := readPassword("Password: ")

	fmt.Println("🔄 Logging in...")
	if err := a.Client.Login(context.Background(), email, password); err != nil {
		return err
	}

	fmt.Println("✅ Logged in successfully!")
	fmt.Println("Run 'duetask sync' to download your tasks.")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.Client.IsLoggedIn() {
		fmt.Println("Not logged in.")
		return nil
	}

	fmt.Println("🔄 Logging out...")
	if err := a.Client.Logout(); err != nil {
		return err
	}

	fmt.Println("✅ Logged out successfully.")
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Name: ")
	name, _ := readLine(reader)

	fmt.Print("Email: ")
	email, _ := readLine(reader)
	if !friends.ValidEmail(email) {
		return fmt.Errorf("invalid email: %s", email)
	}

	password := readPassword("Password: ")
	again := readPassword("Confirm Password: ")

	if password != again {
		return fmt.Errorf("passwords do not match")
	}

	fmt.Println("🔄 Creating account...")
	if err := a.Client.Register(context.Background(), name, email, password); err != nil {
		return err
	}

	fmt.Println("✅ Account created and logged in!")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Server: %s\n", a.Client.ServerURL())
	if !a.Client.IsLoggedIn() {
		fmt.Println("Status: Not logged in")
		return nil
	}

	id, err := a.Client.Refresh(context.Background())
	if err != nil {
		// The cached identity still works offline.
		id, _ = a.Client.Current(context.Background())
		fmt.Printf("⚠️  Server unreachable: %v\n", err)
	}
	fmt.Printf("User:   %s <%s>\n", id.Name(), id.Email)
	fmt.Println("Status: ✓ Logged in")
	return nil
}
