package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/skip2/go-qrcode"

	"quizlive-service/internal/domain"
)

const qrSize = 320 // mobile-friendly size

// ServeQR renders a PNG QR code for the join URL of an active room, so hosts
// can put the PIN on screen as a scannable code. Path: /qr/{pin}.
func (h *WSHandler) ServeQR(w http.ResponseWriter, r *http.Request) {
	pin := strings.TrimPrefix(r.URL.Path, "/qr/")
	if pin == "" || strings.Contains(pin, "/") {
		http.Error(w, "missing pin", http.StatusBadRequest)
		return
	}

	if err := h.service.CheckRoom(pin); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		// A started room still has a valid join URL to show.
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	url := scheme + "://" + r.Host + "/?pin=" + pin

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
