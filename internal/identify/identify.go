// Package identify relays plant photos to external recognition services.
// PlantNet names the plant; when the user also has an OpenAI key, a short
// care-tips call enriches the suggestion. Both services are optional and
// keyed per user.
package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultPlantNetURL = "https://my-api.plantnet.org/v2/identify/all"
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"

	requestTimeout = 30 * time.Second
)

// Image is one uploaded photo to relay.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result is the identification outcome. Warning is set instead of an error
// for expected conditions (no key configured, nothing recognized) so the
// handler can return it as a soft response.
type Result struct {
	Confidence float64  `json:"confidence,omitempty"`
	Prefill    *Prefill `json:"prefill,omitempty"`
	Warning    string   `json:"warning,omitempty"`
}

// Prefill is a suggested plant form payload built from the identification.
type Prefill struct {
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Sun       string   `json:"sun,omitempty"`
	Frequency int      `json:"frequency,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	CareTips  []string `json:"care_tips,omitempty"`
}

// Service calls the external identification APIs.
type Service struct {
	client      *http.Client
	plantNetURL string
	openAIURL   string
}

func NewService() *Service {
	return &Service{
		client:      &http.Client{Timeout: requestTimeout},
		plantNetURL: defaultPlantNetURL,
		openAIURL:   defaultOpenAIURL,
	}
}

type plantNetResponse struct {
	Results []struct {
		Score   float64 `json:"score"`
		Species struct {
			ScientificNameWithoutAuthor string   `json:"scientificNameWithoutAuthor"`
			CommonNames                 []string `json:"commonNames"`
		} `json:"species"`
	} `json:"results"`
}

// Identify relays the images to PlantNet and, when an OpenAI key is
// present, asks for care tips to enrich the prefill. A missing PlantNet
// key or an unrecognized photo yields a Result with Warning set, not an
// error; errors are reserved for request-building failures.
func (s *Service) Identify(ctx context.Context, plantNetKey, openAIKey string, images []Image) (*Result, error) {
	if plantNetKey == "" {
		return &Result{Warning: "Configure ta clé PlantNet dans ton profil pour identifier les plantes."}, nil
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images provided")
	}

	pn, err := s.callPlantNet(ctx, plantNetKey, images)
	if err != nil {
		return &Result{Warning: "Impossible d'identifier la plante. Vérifie ta clé PlantNet."}, nil
	}
	if len(pn.Results) == 0 {
		return &Result{Warning: "Aucune plante reconnue dans cette image."}, nil
	}

	best := pn.Results[0]
	name := best.Species.ScientificNameWithoutAuthor
	if len(best.Species.CommonNames) > 0 {
		name = best.Species.CommonNames[0]
	}
	if name == "" {
		name = "Plante inconnue"
	}

	result := &Result{
		Confidence: best.Score,
		Prefill: &Prefill{
			Name:  name,
			Notes: fmt.Sprintf("Identifié: %s", best.Species.ScientificNameWithoutAuthor),
		},
	}

	if openAIKey != "" {
		if tips, err := s.careTips(ctx, openAIKey, name); err == nil {
			result.Prefill.Type = tips.Type
			result.Prefill.Sun = tips.Sun
			result.Prefill.Frequency = tips.Frequency
			result.Prefill.CareTips = tips.Tips
		}
		// Tips are best-effort; identification succeeds without them.
	}

	return result, nil
}

// callPlantNet posts the images as multipart form data. Transient upstream
// failures (5xx, network) are retried with capped exponential backoff.
func (s *Service) callPlantNet(ctx context.Context, apiKey string, images []Image) (*plantNetResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, img := range images {
		part, err := writer.CreateFormFile("images", img.Filename)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, fmt.Errorf("write form file: %w", err)
		}
	}
	if err := writer.WriteField("organs", "auto"); err != nil {
		return nil, fmt.Errorf("write organs field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL := s.plantNetURL + "?" + url.Values{
		"api-key": {apiKey},
		"lang":    {"fr"},
	}.Encode()

	var parsed plantNetResponse
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body.Bytes()))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("plantnet request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("plantnet returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("plantnet returned %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read plantnet response: %w", err))
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("decode plantnet response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

type careTipsResult struct {
	Tips      []string `json:"tips"`
	Frequency int      `json:"frequency"`
	Sun       string   `json:"sun"`
	Type      string   `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// careTips asks the chat model for three short care tips plus suggested
// cadence fields. The prompt pins a JSON schema so the reply parses
// directly into the prefill.
func (s *Service) careTips(ctx context.Context, apiKey, plantName string) (*careTipsResult, error) {
	prompt := fmt.Sprintf(
		`Donne 3 conseils courts d'entretien pour la plante %q. Réponds en français avec un JSON: `+
			`{"tips": ["conseil1", "conseil2", "conseil3"], "frequency": nombre_jours_arrosage, `+
			`"sun": "ombre|mi-ombre|lumineux|soleil", "type": "interieur|exterieur|aromatique|succulente|potager|fleur|arbre"}`,
		plantName,
	)

	reqBody, err := json.Marshal(map[string]any{
		"model": "gpt-4o-mini",
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.openAIURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat returned %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("chat returned no choices")
	}

	var tips careTipsResult
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &tips); err != nil {
		return nil, fmt.Errorf("decode care tips: %w", err)
	}
	return &tips, nil
}
