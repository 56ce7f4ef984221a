package provider

import "github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"

// PickBest - ответ с максимальной уверенностью; при равенстве побеждает
// провайдер, стоявший раньше в запросе. Пустой список - NoProviderAvailable.
func PickBest(responses []domain.ProviderResponse) (domain.ProviderResponse, error) {
	var best *domain.ProviderResponse
	for i := range responses {
		r := &responses[i]
		if !r.Success {
			continue
		}
		if best == nil ||
			r.Confidence > best.Confidence ||
			(r.Confidence == best.Confidence && r.Order < best.Order) {
			best = r
		}
	}
	if best == nil {
		return domain.ProviderResponse{}, domain.ErrNoProviderAvailable
	}
	return *best, nil
}
