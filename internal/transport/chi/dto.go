package chi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
)

type documentDTO struct {
	ProjectID      string `json:"project_id" validate:"required"`
	ReferenceDocID string `json:"reference_doc_id" validate:"required"`
}

type filtersDTO struct {
	Documents    []documentDTO `json:"documents" validate:"omitempty,max=64,dive"`
	DocSource    string        `json:"doc_source" validate:"omitempty,oneof=system upload"`
	ContractType []string      `json:"contract_type" validate:"omitempty,dive,required"`
	ProjectID    []string      `json:"project_id" validate:"omitempty,dive,required"`
}

type historyMessageDTO struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type chatRequest struct {
	Query          string              `json:"query" validate:"required,max=4096"`
	Filters        *filtersDTO         `json:"filters"`
	MessageHistory []historyMessageDTO `json:"message_history" validate:"omitempty,max=50,dive"`
}

type searchRequest struct {
	Query    string      `json:"query" validate:"required,max=4096"`
	Filters  *filtersDTO `json:"filters"`
	TopK     int         `json:"top_k" validate:"gte=0,lte=50"`
	Mode     string      `json:"mode" validate:"omitempty,oneof=hybrid semantic keyword"`
	MinScore float64     `json:"min_score" validate:"gte=0"`
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type chatMetadata struct {
	RequestID        string `json:"request_id,omitempty"`
	Attempts         int    `json:"attempts"`
	Passages         int    `json:"passages"`
	EmbeddingTokens  int    `json:"embedding_tokens"`
	GenerationTokens int    `json:"generation_tokens"`
	FiltersApplied   bool   `json:"filters_applied"`
}

type chatResponse struct {
	Success   bool         `json:"success"`
	Answer    string       `json:"answer"`
	Citations citation.Map `json:"citations"`
	Error     *errorBody   `json:"error,omitempty"`
	Metadata  chatMetadata `json:"metadata"`
}

type passageDTO struct {
	RecordID         string   `json:"record_id"`
	ProjectID        string   `json:"project_id"`
	ReferenceDocID   string   `json:"reference_doc_id"`
	ChunkIndex       int      `json:"chunk_index"`
	DocumentTitle    string   `json:"document_title"`
	DisplayName      string   `json:"display_name"`
	ContractType     string   `json:"contract_type,omitempty"`
	Source           string   `json:"doc_source,omitempty"`
	SectionHierarchy []string `json:"section_hierarchy,omitempty"`
	Content          string   `json:"content"`
	Score            float64  `json:"score"`
}

type passageListResponse struct {
	Items []passageDTO `json:"items"`
	Total int          `json:"total"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule with its JSON path.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed on '%s=%s'", path, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed on '%s'", path, fe.Tag())
}

func (f *filtersDTO) toScope() (scope.Filter, error) {
	if f == nil {
		return scope.Filter{}, nil
	}
	docs := make([]scope.DocumentRef, len(f.Documents))
	for i, d := range f.Documents {
		docs[i] = scope.DocumentRef{ProjectID: d.ProjectID, ReferenceDocID: d.ReferenceDocID}
	}
	s, err := scope.New(docs, scope.Source(f.DocSource), f.ContractType, f.ProjectID)
	if err != nil {
		return scope.Filter{}, fmt.Errorf("filters: %w", err)
	}
	return s, nil
}

func historyFromDTO(in []historyMessageDTO) (chat.History, error) {
	msgs := make([]chat.Message, len(in))
	for i, m := range in {
		msgs[i] = chat.Message{Role: chat.Role(m.Role), Content: m.Content}
	}
	h, err := chat.NewHistory(msgs)
	if err != nil {
		return nil, fmt.Errorf("message_history: %w", err)
	}
	return h, nil
}

func passageToDTO(p *passage.Passage) passageDTO {
	id := p.ID()
	return passageDTO{
		RecordID:         id.RecordID(),
		ProjectID:        id.ProjectID,
		ReferenceDocID:   id.ReferenceDocID,
		ChunkIndex:       id.ChunkIndex,
		DocumentTitle:    p.DocumentTitle(),
		DisplayName:      p.DisplayName(),
		ContractType:     p.ContractType(),
		Source:           p.Source(),
		SectionHierarchy: p.SectionHierarchy(),
		Content:          p.Content(),
		Score:            p.Score(),
	}
}

func passagesToDTO(ps []passage.Passage) passageListResponse {
	items := make([]passageDTO, len(ps))
	for i := range ps {
		items[i] = passageToDTO(&ps[i])
	}
	return passageListResponse{Items: items, Total: len(items)}
}
