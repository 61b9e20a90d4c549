// simulate hammers one availability slot with concurrent booking requests
// and reports how many won. With a correct ledger exactly one request per
// slot succeeds no matter how many workers race.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/caredesk/clinic-scheduling/internal/db"
)

type bookingBody struct {
	Doctor          string `json:"doctor"`
	Patient         string `json:"patient"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Reason          string `json:"reason"`
}

type availabilityBody struct {
	AvailableSlots []string `json:"available_slots"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		baseURL = flag.String("base-url", "http://127.0.0.1:8080", "api-server base URL")
		doctor  = flag.String("doctor", "", "practitioner UUID (default: first row in the DB)")
		date    = flag.String("date", time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02"), "booking date YYYY-MM-DD")
		workers = flag.Int("workers", 50, "concurrent booking attempts per slot")
	)
	flag.Parse()

	doctorID := *doctor
	if doctorID == "" {
		doctorID = firstPractitioner()
	}

	patients := make([]uuid.UUID, *workers)
	for i := range patients {
		patients[i] = createPatient(*baseURL, fmt.Sprintf("Load Tester %d", i))
	}

	slots := fetchAvailability(*baseURL, doctorID, *date)
	if len(slots) == 0 {
		log.Fatalf("no available slots for doctor %s on %s", doctorID, *date)
	}
	target := slots[0]
	log.Printf("racing %d workers for doctor=%s date=%s time=%s", *workers, doctorID, *date, target)

	var created, conflicts, failures int64
	var wg sync.WaitGroup
	startGun := make(chan struct{})

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-startGun

			status, err := postBooking(*baseURL, patientID, bookingBody{
				Doctor:          doctorID,
				Patient:         patientID.String(),
				AppointmentDate: *date,
				AppointmentTime: target,
				Reason:          "simulated contention probe",
			})
			switch {
			case err != nil:
				atomic.AddInt64(&failures, 1)
			case status == http.StatusCreated:
				atomic.AddInt64(&created, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&conflicts, 1)
			default:
				atomic.AddInt64(&failures, 1)
			}
		}(patients[i])
	}

	close(startGun)
	wg.Wait()

	log.Printf("results: created=%d conflicts=%d failures=%d", created, conflicts, failures)
	if created != 1 {
		log.Fatalf("INVARIANT VIOLATED: expected exactly 1 created appointment, got %d", created)
	}
	log.Println("invariant held: exactly one winner")
}

func firstPractitioner() string {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required when -doctor is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	var id uuid.UUID
	if err := pool.QueryRow(ctx, `SELECT id FROM practitioners WHERE active LIMIT 1`).Scan(&id); err != nil {
		log.Fatalf("load practitioner: %v", err)
	}
	return id.String()
}

func createPatient(baseURL, name string) uuid.UUID {
	body, _ := json.Marshal(map[string]string{"name": name})
	resp, err := http.Post(baseURL+"/patients/", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("create patient: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		log.Fatalf("create patient: status %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode patient: %v", err)
	}
	return out.ID
}

func fetchAvailability(baseURL, doctorID, date string) []string {
	resp, err := http.Get(fmt.Sprintf("%s/doctors/%s/availability/?date=%s", baseURL, doctorID, date))
	if err != nil {
		log.Fatalf("fetch availability: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		log.Fatalf("fetch availability: status %d: %s", resp.StatusCode, raw)
	}

	var out availabilityBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode availability: %v", err)
	}
	return out.AvailableSlots
}

func postBooking(baseURL string, actor uuid.UUID, body bookingBody) (int, error) {
	raw, _ := json.Marshal(body)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments/", bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actor.String())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
