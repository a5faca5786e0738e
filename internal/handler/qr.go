package handler

import (
	"html/template"
	"net/http"
)

type qrCard struct {
	MemberID string
	Name     string
	URL      string
	Image    template.URL
}

// QRCodes renders one login code per member matching the search and filters.
func (h *AdminHandler) QRCodes(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	members, err := h.members.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, r, "list members", err)
		return
	}

	data := map[string]any{
		"Title":       "QR Codes",
		"Filter":      filter,
		"BloodGroups": bloodGroups,
	}
	if len(members) == 0 {
		data["Error"] = "No members found matching your criteria!"
		h.render(w, r, http.StatusOK, "admin_qr_codes.html", data)
		return
	}

	codes, skipped := h.codes.MintAll(members)
	h.metrics.QRCodes(len(codes), skipped)

	cards := make([]qrCard, 0, len(codes))
	for _, c := range codes {
		cards = append(cards, qrCard{
			MemberID: c.MemberID,
			Name:     c.Name,
			URL:      c.URL,
			Image:    template.URL(c.DataURL()),
		})
	}
	data["Codes"] = cards
	data["Skipped"] = skipped
	h.render(w, r, http.StatusOK, "admin_qr_codes.html", data)
}
