package notify

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/price-alerts/internal/config"
	apperrors "github.com/price-alerts/internal/errors"
	"github.com/price-alerts/internal/models"
)

func testRenderer() *Renderer {
	return NewRenderer(&config.AlertsConfig{
		CurrencySymbol: "£",
		SiteURL:        "https://shop.test",
		ImageBaseURL:   "https://shop.test/static/images",
		DefaultImage:   "default.png",
	})
}

func strPtr(s string) *string { return &s }

func TestRenderer_URLs(t *testing.T) {
	r := testRenderer()

	withImage := &models.Product{ID: 7, Name: "Alphonso", Image: strPtr("alphonso box.png")}
	noImage := &models.Product{ID: 8, Name: "Kesar"}
	emptyImage := &models.Product{ID: 9, Name: "Totapuri", Image: strPtr("")}

	assert.Equal(t, "https://shop.test/static/images/alphonso%20box.png", r.ImageURL(withImage))
	assert.Equal(t, "https://shop.test/static/images/default.png", r.ImageURL(noImage))
	assert.Equal(t, "https://shop.test/static/images/default.png", r.ImageURL(emptyImage))
	assert.Equal(t, "https://shop.test/product/7", r.ProductURL(withImage))
}

func TestRenderer_Render(t *testing.T) {
	r := testRenderer()
	user := &models.User{ID: 1, Name: "Asha", Email: "asha@example.com"}
	product := &models.Product{ID: 7, Name: "Alphonso Mango Box", Image: strPtr("alphonso.png")}
	alert := &models.PriceAlert{ID: 3, TargetPrice: decimal.RequireFromString("10")}

	msg, err := r.Render(user, product, alert, decimal.RequireFromString("9.5"))
	require.NoError(t, err)

	assert.Equal(t, "asha@example.com", msg.To)
	assert.Equal(t, "Price drop: Alphonso Mango Box is now £9.50", msg.Subject)
	assert.Contains(t, msg.Text, "Hi Asha,")
	assert.Contains(t, msg.Text, "dropped to £9.50, at or below your target of £10.00")
	assert.Contains(t, msg.Text, "https://shop.test/product/7")
	assert.Contains(t, msg.HTML, `src="https://shop.test/static/images/alphonso.png"`)
	assert.Contains(t, msg.HTML, `href="https://shop.test/product/7"`)
	assert.Contains(t, msg.HTML, "£9.50")
}

func TestRenderer_EscapesHTML(t *testing.T) {
	r := testRenderer()
	user := &models.User{Name: "<b>Eve</b>", Email: "eve@example.com"}
	product := &models.Product{ID: 1, Name: "Mango & Co"}
	alert := &models.PriceAlert{TargetPrice: decimal.NewFromInt(5)}

	msg, err := r.Render(user, product, alert, decimal.NewFromInt(4))
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "Mango &amp; Co")
	assert.Contains(t, msg.Text, "Hi <b>Eve</b>,")
}

func TestMessage_BytesIsMultipartAlternative(t *testing.T) {
	msg := &Message{
		To:      "asha@example.com",
		ToName:  "Asha",
		Subject: "Price drop: Mango is now ₹9.50",
		Text:    "plain ₹9.50",
		HTML:    "<p>html ₹9.50</p>",
	}
	from := mail.Address{Name: "Price Alerts", Address: "shop@example.com"}

	raw, err := msg.Bytes(from, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, subject)

	to, err := parsed.Header.AddressList("To")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", to[0].Address)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var parts []string
	var types []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))

		// multipart.Reader decodes quoted-printable transparently
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		parts = append(parts, string(body))
	}

	assert.Equal(t, []string{"text/plain; charset=UTF-8", "text/html; charset=UTF-8"}, types)
	assert.Equal(t, []string{"plain ₹9.50", "<p>html ₹9.50</p>"}, parts)
}

func newImageServer(t *testing.T, readyAfter int32) (*httptest.Server, *int32) {
	t.Helper()

	var hits int32
	router := mux.NewRouter()
	router.HandleFunc("/static/images/{name}", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if mux.Vars(r)["name"] != "alphonso.png" || n < readyAfter {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG"))
	}).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, &hits
}

func TestImageProber_BecomesAvailable(t *testing.T) {
	server, hits := newImageServer(t, 3)
	prober := NewImageProber(&config.ProbeConfig{MaxAttempts: 5, Interval: time.Millisecond, Timeout: time.Second}, server.Client())

	err := prober.Probe(context.Background(), server.URL+"/static/images/alphonso.png")
	assert.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestImageProber_GivesUp(t *testing.T) {
	server, hits := newImageServer(t, 1)
	prober := NewImageProber(&config.ProbeConfig{MaxAttempts: 2, Interval: time.Millisecond, Timeout: time.Second}, server.Client())

	err := prober.Probe(context.Background(), server.URL+"/static/images/missing.png")
	require.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))

	catErr := apperrors.Categorize(err)
	assert.Equal(t, apperrors.CategoryProbe, catErr.Category)
	assert.False(t, apperrors.IsFatal(err))
}

func TestSMTPMailer_DialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	require.NoError(t, listener.Close())

	mailer := NewSMTPMailer(&config.MailConfig{
		Host:     "127.0.0.1",
		Port:     addr.Port,
		Username: "shop@example.com",
		Password: "secret",
		FromName: "Price Alerts",
		TLSMode:  config.TLSImplicit,
	})

	err = mailer.Send(context.Background(), &Message{To: "asha@example.com", Subject: "x", Text: "x", HTML: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial")
}

// smtpSession records what a client sent to fakeSMTPServer.
type smtpSession struct {
	mu       sync.Mutex
	auth     string
	mailFrom string
	rcptTo   []string
	data     []byte
	quit     bool
}

// fakeSMTPServer answers one connection with a scripted ESMTP dialogue.
// Recipients in reject get a 550 at RCPT.
func fakeSMTPServer(t *testing.T, reject map[string]bool) (int, *smtpSession, <-chan struct{}) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	session := &smtpSession{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

		r := textproto.NewReader(bufio.NewReader(conn))
		reply := func(format string, args ...interface{}) {
			_, _ = fmt.Fprintf(conn, format+"\r\n", args...)
		}

		reply("220 127.0.0.1 ESMTP ready")
		for {
			line, err := r.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

			session.mu.Lock()
			switch {
			case verb == "EHLO":
				reply("250-127.0.0.1")
				reply("250 AUTH PLAIN")
			case strings.HasPrefix(strings.ToUpper(line), "AUTH PLAIN "):
				session.auth = strings.TrimSpace(line[len("AUTH PLAIN "):])
				reply("235 2.7.0 Authentication successful")
			case strings.HasPrefix(strings.ToUpper(line), "MAIL FROM:"):
				session.mailFrom = strings.Trim(line[len("MAIL FROM:"):], "<> ")
				reply("250 2.1.0 OK")
			case strings.HasPrefix(strings.ToUpper(line), "RCPT TO:"):
				rcpt := strings.Trim(line[len("RCPT TO:"):], "<> ")
				if reject[rcpt] {
					reply("550 5.1.1 No such user")
				} else {
					session.rcptTo = append(session.rcptTo, rcpt)
					reply("250 2.1.5 OK")
				}
			case verb == "DATA":
				reply("354 End data with <CR><LF>.<CR><LF>")
				session.mu.Unlock()
				data, err := r.ReadDotBytes()
				session.mu.Lock()
				if err != nil {
					session.mu.Unlock()
					return
				}
				session.data = data
				reply("250 2.0.0 Queued")
			case verb == "QUIT":
				session.quit = true
				reply("221 2.0.0 Bye")
				session.mu.Unlock()
				return
			default:
				reply("250 OK")
			}
			session.mu.Unlock()
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port, session, done
}

func localMailer(port int) *SMTPMailer {
	return NewSMTPMailer(&config.MailConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "shop@example.com",
		Password: "app-token",
		FromName: "Price Alerts",
		TLSMode:  config.TLSNone,
	})
}

func waitSession(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SMTP session did not finish")
	}
}

func TestSMTPMailer_SendSubmitsMessage(t *testing.T) {
	port, session, done := fakeSMTPServer(t, nil)

	msg, err := testRenderer().Render(
		&models.User{ID: 1, Name: "Asha", Email: "asha@example.com"},
		&models.Product{ID: 7, Name: "Alphonso Mango Box"},
		&models.PriceAlert{ID: 3, TargetPrice: decimal.RequireFromString("10")},
		decimal.RequireFromString("9.5"),
	)
	require.NoError(t, err)

	require.NoError(t, localMailer(port).Send(context.Background(), msg))
	waitSession(t, done)

	session.mu.Lock()
	defer session.mu.Unlock()

	creds, err := base64.StdEncoding.DecodeString(session.auth)
	require.NoError(t, err)
	assert.Equal(t, "\x00shop@example.com\x00app-token", string(creds))

	assert.Equal(t, "shop@example.com", session.mailFrom)
	assert.Equal(t, []string{"asha@example.com"}, session.rcptTo)
	assert.True(t, session.quit)

	parsed, err := mail.ReadMessage(strings.NewReader(string(session.data)))
	require.NoError(t, err)

	from, err := parsed.Header.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "Price Alerts", from[0].Name)
	assert.Equal(t, "shop@example.com", from[0].Address)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Price drop: Alphonso Mango Box is now £9.50", subject)

	mediaType, _, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)
}

func TestSMTPMailer_RejectedRecipientFails(t *testing.T) {
	port, session, done := fakeSMTPServer(t, map[string]bool{"gone@example.com": true})

	err := localMailer(port).Send(context.Background(), &Message{
		To:      "gone@example.com",
		Subject: "Price drop",
		Text:    "x",
		HTML:    "<p>x</p>",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set recipient")
	assert.Contains(t, err.Error(), "550")

	waitSession(t, done)
	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Empty(t, session.rcptTo)
	assert.Nil(t, session.data)
}
