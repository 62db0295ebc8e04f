package origin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
)

const landingForm = `<html><body><form>
<select name="ciclop">
<option value="202520">2025 B</option>
<option value="202510">2025 A</option>
<option value="202480">2024 V</option>
<option value="202530">2025 C</option>
<option value="999">OTRO</option>
</select>
<select name="cup">
<option value="">Seleccione</option>
<option value="D">D - CENTRO UNIVERSITARIO DE CIENCIAS EXACTAS E INGENIERIAS</option>
<option value="3">CUTONALA&nbsp;CAMPUS</option>
</select>
</form></body></html>`

func TestOptionsOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wco/sspseca.forma_consulta" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingForm))
	}))
	defer srv.Close()

	client := collyfetcher.New(collyfetcher.Config{Timeout: time.Second})
	r := New(client, nil, nil, Config{BaseURL: srv.URL + "/wco/"}, nil)

	opts, err := r.Options(context.Background())
	require.NoError(t, err)

	require.Len(t, opts.Terms, 3)
	require.Equal(t, "202520", opts.Terms[0].Code)
	require.Equal(t, "2025B", opts.Terms[0].Label)
	require.Equal(t, "2024V", opts.Terms[2].Label)

	require.Len(t, opts.Campuses, 2)
	require.Equal(t, "D", opts.Campuses[0].Value)
	require.Equal(t, "D", opts.Campuses[0].Code)
	require.Equal(t, "CENTRO UNIVERSITARIO DE CIENCIAS EXACTAS E INGENIERIAS", opts.Campuses[0].Name)
	require.Equal(t, "3", opts.Campuses[1].Code)
	require.Equal(t, "CUTONALA CAMPUS", opts.Campuses[1].Name)
}
