// Command booking-sim exercises a running booking service: it races several
// clients for one slot, or prints a bcrypt hash for ADMIN_SECRET_BCRYPT.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/meetslot/libs/auth"
)

func main() {
	var (
		baseURL    = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		date       = flag.String("date", getenv("BOOK_DATE", ""), "day to book, YYYY-MM-DD")
		clients    = flag.Int("clients", 5, "concurrent booking attempts for the same slot")
		hashSecret = flag.String("hash-secret", "", "print a bcrypt hash of this admin secret and exit")
	)
	flag.Parse()

	if *hashSecret != "" {
		hash, err := auth.HashSecret(*hashSecret)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Println(hash)
		return
	}
	if strings.TrimSpace(*date) == "" {
		fatal("BOOK_DATE is required")
	}
	if *clients < 1 {
		fatal("clients must be at least 1")
	}
	base := strings.TrimRight(*baseURL, "/")
	client := &http.Client{Timeout: 10 * time.Second}

	start, err := firstSlot(client, base, *date)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("racing %d clients for %s\n", *clients, start)

	statuses := race(client, base, start, *clients)
	counts := map[int]int{}
	for _, s := range statuses {
		counts[s]++
	}
	for status, n := range counts {
		fmt.Printf("status=%d count=%d\n", status, n)
	}
	if counts[http.StatusCreated] != 1 {
		fatal(fmt.Sprintf("expected exactly one 201, got %d", counts[http.StatusCreated]))
	}
}

func firstSlot(client *http.Client, base, date string) (string, error) {
	resp, err := client.Get(base + "/slots?date=" + date)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("slots: status %d", resp.StatusCode)
	}
	var body struct {
		Slots []struct {
			StartISO string `json:"startIso"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Slots) == 0 {
		return "", fmt.Errorf("no free slots on %s", date)
	}
	return body.Slots[0].StartISO, nil
}

// race fires n bookings for start at once and returns their HTTP statuses.
func race(client *http.Client, base, start string, n int) []int {
	statuses := make([]int, n)
	var wg sync.WaitGroup
	ready := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]string{
				"startIso":       start,
				"clientName":     fmt.Sprintf("Sim Client %d", i),
				"clientEmail":    fmt.Sprintf("sim%d@example.com", i),
				"clientTimezone": "UTC",
				"message":        "booking-sim",
			})
			<-ready
			resp, err := client.Post(base+"/book", "application/json", bytes.NewReader(payload))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	close(ready)
	wg.Wait()
	return statuses
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
