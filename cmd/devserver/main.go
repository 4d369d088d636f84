// Command devserver runs the local consultation push server used for demos
// and manual testing of the TUI.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/devserver"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address")
	demo := flag.Bool("demo", false, "Push demo notifications and unread counts")
	flag.Parse()

	srv := devserver.New()

	// Fixed demo accounts; sign in from the TUI with one of the tokens.
	srv.AddAccount(client.User{ID: "u1", Name: "An Nguyen", Role: client.RoleStudent}, "student-token")
	srv.AddAccount(client.User{ID: "c1", Name: "Dr. Tran", Role: client.RoleConsultant}, "consultant-token")
	srv.AddAccount(client.User{ID: "c2", Name: "Ms. Le", Role: client.RoleConsultant}, "consultant-token-2")
	log.Println("Accounts: u1/student-token, c1/consultant-token, c2/consultant-token-2")

	if *demo {
		go demoLoop(srv)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	if err := devserver.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// demoLoop generates pushed activity so a connected client has something to
// reconcile.
func demoLoop(srv *devserver.Server) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	n := 0
	for range ticker.C {
		n++
		srv.PushNotification("u1", client.NotificationEvent{
			SenderID:         "c1",
			Content:          fmt.Sprintf("Your question **#%d** has a new answer.", n),
			Time:             time.Now(),
			NotificationType: "answer",
			Status:           "unread",
		})
		srv.SetUnreadConversations("u1", n%4)
	}
}
