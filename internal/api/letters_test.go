package api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/swift-letter/internal/functions"
	"github.com/illegalcall/swift-letter/internal/models"
)

const testLetter = "\\documentclass{article}\n" +
	"\\newcommand{\\targetCompany}{Acme}\n" +
	"\\newcommand{\\targetPosition}{Engineer}\n" +
	"\\begin{document}\n" +
	"Dear Hiring Manager,\n" +
	"Old body.\n" +
	"\\vspace{2.0em}\n" +
	"Sincerely,\\\\\nJane\n" +
	"\\end{document}\n"

func TestGeneratePDFRequiresBearer(t *testing.T) {
	env := setupTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter})
	resp, body := doRequest(t, env, req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Missing authorization header", body["error"])

	// a session cookie is not enough for the metered routes
	req = jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter})
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: testToken})
	resp, _ = doRequest(t, env, req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter}), "expired"))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	assert.Zero(t, env.functions.count())
}

func TestGeneratePDF(t *testing.T) {
	env := setupTestServer(t)
	env.functions.resp = &functions.Response{Status: 200, Body: []byte(`{"pdf":"JVBERi0xLjQ="}`), ContentType: "application/json"}

	resp, body := doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter}), testToken))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "JVBERi0xLjQ=", body["pdf"])

	require.Equal(t, 1, env.functions.count())
	call := env.functions.calls[0]
	assert.Equal(t, "compile-pdf", call.name)
	assert.False(t, call.retry)
	assert.JSONEq(t, `{"latex":`+mustJSON(t, testLetter)+`}`, call.payload)
	assert.Equal(t, []models.EventType{models.EventPDFCompiled}, env.producer.eventTypes())

	resp, body = doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": " "}), testToken))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "LaTeX content is required", body["error"])
	assert.Equal(t, 1, env.functions.count())
}

func TestFunctionRoutesWithoutClient(t *testing.T) {
	env := setupTestServer(t)
	env.server.functions = nil

	resp, _ := doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter}), testToken))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-cover-letter", map[string]string{"jobDescription": "Go"}), testToken))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, env.producer.eventTypes())
}

func TestGenerateCoverLetter(t *testing.T) {
	t.Run("job description required", func(t *testing.T) {
		env := setupTestServer(t)
		resp, body := doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-cover-letter", map[string]string{"tone": "formal"}), testToken))

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Job description is required", body["error"])
		assert.Zero(t, env.functions.count())
	})

	t.Run("forwards body unchanged", func(t *testing.T) {
		env := setupTestServer(t)
		env.functions.resp = &functions.Response{Status: 200, Body: []byte(`{"latex":"\\documentclass{article}","creditsRemaining":2}`), ContentType: "application/json"}

		in := map[string]any{"jobDescription": "Build APIs in Go", "tone": "formal"}
		resp, body := doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-cover-letter", in), testToken))

		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 2, body["creditsRemaining"])
		require.Equal(t, 1, env.functions.count())
		assert.JSONEq(t, `{"jobDescription":"Build APIs in Go","tone":"formal"}`, env.functions.calls[0].payload)
		assert.Equal(t, testToken, env.functions.calls[0].token)
		assert.Equal(t, []models.EventType{models.EventLetterGenerated}, env.producer.eventTypes())
	})

	t.Run("out of credits relayed", func(t *testing.T) {
		env := setupTestServer(t)
		env.functions.resp = &functions.Response{Status: 402, Body: []byte(`{"error":"Insufficient credits"}`), ContentType: "application/json"}

		in := map[string]any{"job_description": "Build APIs in Go"}
		resp, body := doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-cover-letter", in), testToken))

		assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
		assert.Equal(t, "Insufficient credits", body["error"])
		assert.Empty(t, env.producer.eventTypes())
	})
}

func TestDownloadPDF(t *testing.T) {
	env := setupTestServer(t)
	pdf := onePagePDF("BT /F1 12 Tf 72 720 Td (Hello) Tj ET")

	req := jsonRequest(http.MethodPost, "/api/download-pdf", map[string]string{
		"pdf":      "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
		"filename": "Acme Letter",
	})
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Acme Letter.pdf"`, resp.Header.Get("Content-Disposition"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)
	assert.Equal(t, []models.EventType{models.EventPDFDownloaded}, env.producer.eventTypes())

	for _, in := range []string{"not base64!", base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/download-pdf", map[string]string{"pdf": in}))
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid PDF data", body["error"])
	}
}

func TestPDFFilename(t *testing.T) {
	for in, want := range map[string]string{
		"":                 "cover-letter.pdf",
		"letter":           "letter.pdf",
		"Letter.PDF":       "Letter.PDF",
		"../../etc/passwd": "passwd.pdf",
		`x"y;z.pdf`:        "xyz.pdf",
	} {
		assert.Equal(t, want, pdfFilename(in), in)
	}
}

func TestLetterPreview(t *testing.T) {
	env := setupTestServer(t)

	resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/preview", map[string]string{"latex": testLetter}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Acme", body["targetCompany"])
	assert.Equal(t, "Engineer", body["targetPosition"])
	assert.Equal(t, "Old body.", body["body"])
	assert.Equal(t, false, body["degraded"])

	drifted := "\\begin{document}\nHello team,\nBody\n\\end{document}"
	resp, body = doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/preview", map[string]string{"latex": drifted}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["degraded"])
	assert.Equal(t, "Hello team, Body", body["body"])
}

func TestLetterRender(t *testing.T) {
	env := setupTestServer(t)

	resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/render", map[string]string{"latex": `\textbf{Hi} there, 50\% done`}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hi there, 50% done", body["text"])

	resp, _ = doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/render", map[string]string{}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLetterSplice(t *testing.T) {
	env := setupTestServer(t)

	resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/splice", map[string]string{
		"latex": testLetter,
		"body":  "I bring 100% effort.\n\n\nThanks   again.",
	}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "I bring 100% effort.\n\nThanks again.", body["text"])

	out, _ := body["latex"].(string)
	assert.Contains(t, out, `I bring 100\% effort.`)
	assert.Contains(t, out, "Dear Hiring Manager,\n")
	assert.NotContains(t, out, "Old body.")
	assert.Contains(t, out, "\\vspace{2.0em}\nSincerely")

	resp, body = doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/splice", map[string]string{
		"latex": "\\begin{document}\nNo greeting\n\\vspace{2.0em}\n",
		"body":  "text",
	}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Letter does not match the template: greeting marker not found", body["error"])
	assert.Equal(t, "latex", body["field"])

	resp, body = doRequest(t, env, jsonRequest(http.MethodPost, "/api/letter/splice", map[string]string{"latex": testLetter}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Letter body is required", body["error"])
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
