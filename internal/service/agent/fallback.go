package agent

import "strings"

// TransferMessage is the fixed reply sent when a conversation is
// escalated to a human agent.
const TransferMessage = "Entendi! Vou te transferir para um de nossos atendentes. " +
	"Um membro da nossa equipe vai continuar essa conversa em breve. 🙋"

// fallbackEntry pairs topic substrings with a canned reply. Entries are
// checked in order against the lower-cased message; the first hit wins.
type fallbackEntry struct {
	keywords []string
	reply    string
}

// Specific topics come before the greeting entry: "oi" is a substring
// of common words ("depois", "foi") and must only win as a last resort
// among the matched entries.
var fallbackDictionary = []fallbackEntry{
	{
		keywords: []string{"saldo", "quanto tenho", "meu dinheiro"},
		reply:    "Para consultar o saldo das suas caixinhas, abra a aba Caixinhas no aplicativo. Lá você vê o saldo atualizado de cada grupo que participa.",
	},
	{
		keywords: []string{"como funciona", "o que é caixinha", "o que e caixinha", "como usar"},
		reply:    "A Caixinha é um grupo de poupança colaborativa: você e outras pessoas depositam juntos e acompanham o saldo em tempo real. Crie uma caixinha na aba Caixinhas e convide quem quiser!",
	},
	{
		keywords: []string{"pagamento", "pagar", "depositar", "depósito", "deposito", "pix"},
		reply:    "Pagamentos e depósitos são feitos pela aba da caixinha, no botão Depositar. Aceitamos Pix e cartão. O valor aparece no saldo do grupo assim que for confirmado.",
	},
	{
		keywords: []string{"vender", "anunciar", "marketplace", "loja", "produto"},
		reply:    "No marketplace você pode anunciar produtos para a sua comunidade. Acesse a aba Loja e toque em Anunciar para criar sua oferta.",
	},
	{
		keywords: []string{"perfil", "foto", "meu nome", "meus dados", "alterar dados"},
		reply:    "Você pode editar nome, foto e demais dados na aba Perfil, tocando em Editar. As mudanças aparecem para seus contatos na hora.",
	},
	{
		keywords: []string{"erro", "bug", "travou", "não funciona", "nao funciona", "problema no app"},
		reply:    "Sinto muito pelo transtorno! Tente fechar e abrir o aplicativo novamente. Se o problema continuar, me conte o que aconteceu que eu encaminho para nossa equipe técnica.",
	},
	{
		keywords: []string{"suporte", "ajuda urgente", "atendimento"},
		reply:    "Estou aqui para ajudar! Me conte o que está acontecendo. Se preferir falar com uma pessoa da equipe, é só pedir para falar com um atendente.",
	},
	{
		keywords: []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "e aí", "e ai"},
		reply:    "Olá! 👋 Sou o assistente virtual da Caixinha. Posso te ajudar com dúvidas sobre caixinhas, pagamentos, seu perfil e muito mais. O que você precisa?",
	},
	{
		keywords: []string{"ajuda", "menu", "o que você faz", "o que voce faz", "comandos"},
		reply: "Posso te ajudar com:\n" +
			"• Caixinhas: como funcionam, saldo e depósitos\n" +
			"• Pagamentos: Pix, cartão e estornos\n" +
			"• Marketplace: anúncios e vendas\n" +
			"• Perfil: dados e configurações\n" +
			"É só perguntar! E se precisar, chamo um atendente humano para você.",
	},
}

// defaultFallbackReply answers anything no topic matched.
const defaultFallbackReply = "Desculpe, não consegui processar sua mensagem agora. " +
	"Pode reformular? Se preferir, posso te transferir para um atendente humano."

// FallbackReply returns the canned response for a message when the
// completion provider is unavailable. Always non-empty.
func FallbackReply(messageContent string) string {
	msg := strings.ToLower(messageContent)
	for _, entry := range fallbackDictionary {
		for _, kw := range entry.keywords {
			if strings.Contains(msg, kw) {
				return entry.reply
			}
		}
	}
	return defaultFallbackReply
}
