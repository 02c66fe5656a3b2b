// Command token mints an HS256 access token for manual testing of the
// tracking WebSocket: paste the output into the first auth frame.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"servicelink/internal/domain/user"
	"servicelink/internal/general/jwt"
)

func main() {
	var (
		userID = flag.String("user-id", "", "user id (token subject)")
		role   = flag.String("role", "customer", "user role: customer | provider | admin")
		secret = flag.String("secret", "", "JWT HMAC secret (HS256), must match the service config")
		ttl    = flag.Duration("ttl", 2*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *userID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: token --user-id=<id> --role=customer --secret='<secret>' [--ttl=2h]")
		os.Exit(2)
	}

	parsedRole, err := user.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	mgr := jwt.NewManager(*secret, *ttl)
	token, claims, err := mgr.IssueUserToken(*userID, parsedRole)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:  %s\n", claims.Subject)
	fmt.Printf("  role: %s\n", claims.Role)
	fmt.Printf("  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
