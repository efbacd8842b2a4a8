package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/minio/minio-go/v7"

	"souq_back_end/internal/database"
)

// UploadInvoicePDF pousse une facture générée dans le bucket et retourne
// son URL publique.
func UploadInvoicePDF(ctx context.Context, orderID string, pdf []byte) (string, error) {
	if database.MinIO == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}

	bucket := os.Getenv("MINIO_BUCKET")
	objectName := fmt.Sprintf("invoices/%s/facture-%s.pdf", time.Now().Format("2006-01"), orderID)

	_, err := database.MinIO.PutObject(ctx, bucket, objectName,
		bytes.NewReader(pdf), int64(len(pdf)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://%s/%s/%s", os.Getenv("MINIO_ENDPOINT"), bucket, objectName)
	return url, nil
}

// PresignedInvoiceURL génère un lien de téléchargement temporaire (7 jours).
func PresignedInvoiceURL(ctx context.Context, objectName string) (string, error) {
	if database.MinIO == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}
	u, err := database.MinIO.PresignedGetObject(ctx, os.Getenv("MINIO_BUCKET"), objectName, 7*24*time.Hour, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
