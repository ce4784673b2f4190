package notification_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/stay-booking/internal/notification"
	notificationtypes "github.com/frahmantamala/stay-booking/internal/core/datamodel/notification"
)

func TestNotification(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notification Suite")
}

var _ = Describe("Client", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	It("should deliver a queued message to the gateway", func() {
		var mu sync.Mutex
		var received []notificationtypes.Message
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var msg notificationtypes.Message
			Expect(json.NewDecoder(r.Body).Decode(&msg)).To(Succeed())
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		client := notification.NewClient(notification.Config{
			GatewayURL: server.URL,
			MaxWorkers: 2,
		}, logger)
		defer client.Shutdown()

		Expect(client.Send(42, "booking_confirmed", map[string]interface{}{"booking_id": int64(7)})).To(Succeed())

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(received)
		}, time.Second, 10*time.Millisecond).Should(Equal(1))

		mu.Lock()
		defer mu.Unlock()
		Expect(received[0].UserID).To(Equal(int64(42)))
		Expect(received[0].Template).To(Equal("booking_confirmed"))
	})

	It("should shut down cleanly immediately after start", func() {
		client := notification.NewClient(notification.Config{
			GatewayURL: "http://localhost:0",
			MaxWorkers: 4,
		}, logger)

		done := make(chan struct{})
		go func() {
			client.Shutdown()
			close(done)
		}()

		Eventually(done, time.Second).Should(BeClosed())
	})
})
