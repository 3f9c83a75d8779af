package elasticsearch

import "strings"

// searchQuery matches the query text against item names and schema text,
// restricted to the requested sites when there are any.
func searchQuery(query string, sites []string) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  query,
					"fields": []string{"name^3", "content"},
					"type":   "best_fields",
				},
			},
		},
	}
	if len(sites) > 0 {
		lowered := make([]string, len(sites))
		for i, s := range sites {
			lowered[i] = strings.ToLower(s)
		}
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"terms": map[string]interface{}{"site": lowered}},
		}
	}
	return map[string]interface{}{"query": map[string]interface{}{"bool": boolQuery}}
}

func urlQuery(url string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"url": url}},
	}
}

func idsQuery(ids []string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{"ids": map[string]interface{}{"values": ids}},
	}
}

func sitesAggregation(size int) map[string]interface{} {
	return map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"sites": map[string]interface{}{"terms": map[string]interface{}{"field": "site", "size": size}},
		},
	}
}

// indexMapping keeps url and site as exact keywords and stores the schema unindexed.
var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"url":     map[string]interface{}{"type": "keyword"},
			"site":    map[string]interface{}{"type": "keyword"},
			"name":    map[string]interface{}{"type": "text"},
			"content": map[string]interface{}{"type": "text"},
			"schema":  map[string]interface{}{"type": "object", "enabled": false},
		},
	},
}
