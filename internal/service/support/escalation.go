package support

import (
	"strings"

	"caixinha-backend/internal/domain"
)

// Keyword sets matched as substrings against the lower-cased message.
// Portuguese first; a few English variants cover mixed-language users.
var (
	directRequestKeywords = []string{
		"falar com atendente",
		"falar com humano",
		"falar com uma pessoa",
		"atendimento humano",
		"quero um atendente",
		"suporte humano",
		"reclamacao",
		"reclamação",
		"quero reclamar",
		"excluir minha conta",
		"apagar minha conta",
		"deletar minha conta",
		"cancelar minha conta",
		"human agent",
		"real person",
		"delete my account",
	}

	financialIncidentKeywords = []string{
		"dinheiro sumiu",
		"dinheiro desapareceu",
		"saldo errado",
		"saldo incorreto",
		"saldo sumiu",
		"cobranca indevida",
		"cobrança indevida",
		"cobrado duas vezes",
		"transferencia falhou",
		"transferência falhou",
		"pix não caiu",
		"pix nao caiu",
		"pagamento não caiu",
		"pagamento nao caiu",
		"estorno",
		"money missing",
		"wrong balance",
	}

	securityIncidentKeywords = []string{
		"conta invadida",
		"conta hackeada",
		"hackearam",
		"fraude",
		"golpe",
		"acesso não autorizado",
		"acesso nao autorizado",
		"não reconheço essa",
		"nao reconheco essa",
		"roubaram minha conta",
		"account hacked",
		"unauthorized access",
	}

	technicalIssueKeywords = []string{
		"não consigo entrar",
		"nao consigo entrar",
		"não consigo logar",
		"nao consigo logar",
		"conta bloqueada",
		"conta travada",
		"aplicativo travando",
		"app travando",
		"app fechando sozinho",
		"erro o tempo todo",
		"cannot log in",
		"account locked",
	}
)

// Contextual heuristic triggers.
const (
	balanceTopic           = "saldo"
	saleTopic              = "venda"
	paymentTopic           = "pagamento"
	manyCaixinhasThreshold = 3
)

// ShouldEscalate decides whether a message sent to the assistant must
// be handed to a human. Pure function: any keyword hit short-circuits,
// then the user-context heuristics run. userContext may be nil.
func ShouldEscalate(messageContent string, userContext *domain.UserContext) bool {
	msg := strings.ToLower(messageContent)

	for _, set := range [][]string{
		directRequestKeywords,
		financialIncidentKeywords,
		securityIncidentKeywords,
		technicalIssueKeywords,
	} {
		for _, kw := range set {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}

	if userContext == nil {
		return false
	}

	// Heavy caixinha users asking about balance get a human; the
	// assistant cannot see per-group ledgers.
	if userContext.ActiveCaixinhas > manyCaixinhasThreshold && strings.Contains(msg, balanceTopic) {
		return true
	}

	if userContext.IsSeller() && (strings.Contains(msg, saleTopic) || strings.Contains(msg, paymentTopic)) {
		return true
	}

	return false
}
