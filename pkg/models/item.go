package models

// ItemsKey is the NodeResult data key holding a list of pipelined items.
const ItemsKey = "items"

// Item is one record flowing through a node. PairedItem is the index of the
// input item it was produced from.
type Item struct {
	JSON       map[string]any `json:"json"`
	PairedItem int            `json:"paired_item"`
}

// ItemsFromResult extracts the items carried by a node result. Data without an
// items list is treated as a single item.
func ItemsFromResult(result NodeResult) []map[string]any {
	raw, ok := result.Data[ItemsKey]
	if !ok {
		if result.Data == nil {
			return []map[string]any{{}}
		}

		return []map[string]any{result.Data}
	}

	var items []map[string]any

	switch list := raw.(type) {
	case []map[string]any:
		items = append(items, list...)
	case []Item:
		for _, it := range list {
			items = append(items, it.JSON)
		}
	case []any:
		for _, entry := range list {
			switch v := entry.(type) {
			case map[string]any:
				if inner, ok := v["json"].(map[string]any); ok {
					items = append(items, inner)
				} else {
					items = append(items, v)
				}
			default:
				items = append(items, map[string]any{"value": v})
			}
		}
	}

	return items
}

// ItemsData wraps output items as NodeResult data.
func ItemsData(items []Item) map[string]any {
	return map[string]any{ItemsKey: items}
}
