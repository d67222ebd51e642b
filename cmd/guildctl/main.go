// Command guildctl is an operator CLI for the guild engine's HTTP surface,
// in the spirit of nhb-cli: a flat os.Args command switch issuing JSON
// requests against a running guildd instance.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"guildcore/internal/hostauth"
	"guildcore/internal/principal"
)

var endpoint = envOr("GUILDCTL_ENDPOINT", "http://localhost:8080")
var signingSecret = envOr("GUILDCTL_JWT_SECRET", "")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	switch os.Args[1] {
	case "login":
		if len(os.Args) < 3 {
			fmt.Println("Error: please provide a principal address.")
			printUsage()
			return
		}
		login(os.Args[2])
	case "create-guild":
		if len(os.Args) < 5 {
			fmt.Println("Error: please provide a caller token, guild name, and description.")
			printUsage()
			return
		}
		createGuild(os.Args[2], os.Args[3], os.Args[4])
	case "add-member":
		if len(os.Args) < 6 {
			fmt.Println("Error: please provide a token, guild id, member address, and role.")
			printUsage()
			return
		}
		addMember(os.Args[2], os.Args[3], os.Args[4], os.Args[5])
	case "deposit":
		if len(os.Args) < 5 {
			fmt.Println("Error: please provide a token, guild id, and amount.")
			printUsage()
			return
		}
		deposit(os.Args[2], os.Args[3], os.Args[4])
	case "propose-withdrawal":
		if len(os.Args) < 7 {
			fmt.Println("Error: please provide a token, guild id, recipient, amount, and reason.")
			printUsage()
			return
		}
		proposeWithdrawal(os.Args[2], os.Args[3], os.Args[4], os.Args[5], os.Args[6])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
	}
}

func login(address string) {
	if signingSecret == "" {
		fmt.Println("Error: GUILDCTL_JWT_SECRET must be set to mint a local demo token.")
		return
	}
	p, err := principal.Parse(address)
	if err != nil {
		fmt.Printf("Error: invalid principal address: %v\n", err)
		return
	}
	token, err := hostauth.IssueToken(signingSecret, p, time.Hour)
	if err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		return
	}
	fmt.Println(token)
}

func createGuild(token, name, description string) {
	body := map[string]string{"name": name, "description": description}
	var out map[string]any
	if err := post(token, "/v1/guilds/", body, &out); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printJSON(out)
}

func addMember(token, guildID, address, role string) {
	body := map[string]string{"address": address, "role": role}
	var out map[string]any
	if err := post(token, "/v1/guilds/"+guildID+"/members", body, &out); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printJSON(out)
}

func deposit(token, guildID, amount string) {
	body := map[string]string{"amount": amount, "token": "native"}
	var out map[string]any
	if err := post(token, "/v1/treasury/"+guildID+"/deposit", body, &out); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printJSON(out)
}

func proposeWithdrawal(token, guildID, recipient, amount, reason string) {
	body := map[string]string{"recipient": recipient, "amount": amount, "token": "native", "reason": reason}
	var out map[string]any
	if err := post(token, "/v1/treasury/"+guildID+"/withdrawals", body, &out); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printJSON(out)
}

func post(token, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("guildd returned %s: %s", resp.Status, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func printJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(encoded))
}

func printUsage() {
	fmt.Println("Usage: guildctl <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  login <address>                                          - Mints a local demo bearer token for address")
	fmt.Println("  create-guild <token> <name> <description>                - Creates a new guild")
	fmt.Println("  add-member <token> <guild_id> <address> <role>           - Adds a member to a guild")
	fmt.Println("  deposit <token> <guild_id> <amount>                      - Deposits funds into a guild's treasury")
	fmt.Println("  propose-withdrawal <token> <guild_id> <recipient> <amount> <reason> - Proposes a treasury withdrawal")
}
