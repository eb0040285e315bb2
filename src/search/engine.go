package search

import (
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"bpsalgo/src/helpers"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Engine is a bleve-backed full-text index over the broker instrument master.
// Used to resolve free-text watchlist additions to tradable symbols.
// -----------------------------------------------------------------------------

type Engine struct {
	index  bleve.Index
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewEngine opens the index at indexPath, creating and populating it from
// instruments when it does not exist yet.
func NewEngine(indexPath string, instruments []models.MInstrument, log *logger.Logger) (*Engine, error) {
	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, helpers.NewDatabaseError("failed to create search index", err)
		}

		log.Info("Indexing %d instruments", len(instruments))
		batch := index.NewBatch()
		for _, inst := range instruments {
			// Symbols can repeat across exchanges, key on both
			id := inst.Symbol + "-" + inst.Exchange
			if err := batch.Index(id, inst); err != nil {
				return nil, helpers.NewDatabaseError("failed to batch instrument", err)
			}
		}
		if err := index.Batch(batch); err != nil {
			return nil, helpers.NewDatabaseError("failed to execute index batch", err)
		}
	} else if err != nil {
		return nil, helpers.NewDatabaseError("failed to open search index", err)
	} else {
		log.Info("Opened existing instrument index at %s", indexPath)
	}

	return &Engine{index: index, Logger: log}, nil
}

// -----------------------------------------------------------------------------

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	instMapping := bleve.NewDocumentMapping()

	popularityField := bleve.NewNumericFieldMapping()
	popularityField.Store = true
	popularityField.Index = true
	instMapping.AddFieldMappingsAt("popularity_score", popularityField)

	tokenField := bleve.NewNumericFieldMapping()
	tokenField.Store = true
	tokenField.Index = false
	instMapping.AddFieldMappingsAt("token", tokenField)

	indexMapping.AddDocumentMapping("_default", instMapping)

	return indexMapping
}

// -----------------------------------------------------------------------------

// Search ranks instruments by match type (exact symbol > symbol prefix >
// name match > substring) blended with popularity.
func (e *Engine) Search(query string, limit int) []models.MInstrument {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}

	lower := strings.ToLower(query)

	exactQuery := bleve.NewTermQuery(lower)
	exactQuery.SetField("symbol")
	exactQuery.SetBoost(10.0)

	prefixQuery := bleve.NewPrefixQuery(lower)
	prefixQuery.SetField("symbol")
	prefixQuery.SetBoost(5.0)

	nameQuery := bleve.NewMatchQuery(query)
	nameQuery.SetField("name")
	nameQuery.SetBoost(3.0)

	wildSymbol := bleve.NewWildcardQuery("*" + lower + "*")
	wildSymbol.SetField("symbol")
	wildSymbol.SetBoost(2.0)

	wildName := bleve.NewWildcardQuery("*" + lower + "*")
	wildName.SetField("name")
	wildName.SetBoost(1.5)

	searchQuery := bleve.NewDisjunctionQuery(
		exactQuery, prefixQuery, nameQuery, wildSymbol, wildName,
	)

	request := bleve.NewSearchRequest(searchQuery)
	request.Fields = []string{"symbol", "name", "exchange", "type", "token", "popularity_score"}
	request.Size = 100

	results, err := e.index.Search(request)
	if err != nil {
		e.Logger.Error("Instrument search failed: %v", err)
		return nil
	}

	type scored struct {
		inst  models.MInstrument
		score float64
	}

	var hits []scored
	for _, hit := range results.Hits {
		inst := instrumentFromFields(hit.Fields)

		// Relevance first, popularity as tiebreaker boost
		hits = append(hits, scored{
			inst:  inst,
			score: hit.Score*0.7 + inst.PopularityScore*0.3,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.MInstrument, len(hits))
	for i, h := range hits {
		out[i] = h.inst
	}
	return out
}

// -----------------------------------------------------------------------------

// GetBySymbol resolves an exact symbol to its instrument, or nil.
func (e *Engine) GetBySymbol(symbol string) *models.MInstrument {
	termQuery := bleve.NewTermQuery(strings.ToLower(symbol))
	termQuery.SetField("symbol")

	request := bleve.NewSearchRequest(termQuery)
	request.Fields = []string{"symbol", "name", "exchange", "type", "token", "popularity_score"}
	request.Size = 1

	results, err := e.index.Search(request)
	if err != nil || len(results.Hits) == 0 {
		return nil
	}

	inst := instrumentFromFields(results.Hits[0].Fields)
	return &inst
}

// -----------------------------------------------------------------------------

func instrumentFromFields(fields map[string]interface{}) models.MInstrument {
	getString := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		return ""
	}
	getFloat := func(key string) float64 {
		if v, ok := fields[key].(float64); ok {
			return v
		}
		return 0.0
	}

	return models.MInstrument{
		Symbol:          getString("symbol"),
		Name:            getString("name"),
		Exchange:        getString("exchange"),
		Type:            getString("type"),
		Token:           int(getFloat("token")),
		PopularityScore: getFloat("popularity_score"),
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) Close() error {
	return e.index.Close()
}
