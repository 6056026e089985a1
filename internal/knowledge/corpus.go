package knowledge

import "persona_engine/pkg"

const metodoMD = `[MÉTODO MD - 5 PILARES DE EXECUÇÃO]
1. AUTOCONFIANÇA: A base de tudo. Sem ela, você não começa.
2. CORAGEM: Agir apesar do medo. O medo é bússola.
3. COMPROMETIMENTO: Fazer o que precisa ser feito, independente da vontade.
4. RESPONSABILIDADE: Você é o único culpado pelos seus resultados.
5. RESULTADOS: A única métrica que importa. Opinião sem resultado é lixo.

[MENTALIDADE]
- "O medo é a bússola: se dá medo, é pra lá que você tem que ir."
- "A vida que você quer está do outro lado do trabalho que você não quer fazer."
- "Quem é bom em desculpa não é bom em mais nada."
- "Feito é melhor que perfeito, mas nunca faça mal feito."
- "Sucesso é treinável."`

const pilarNarrativa = `[PILAR 1: NARRATIVA - DOMÍNIO TERRITORIAL]

PROPÓSITO: Instalar domínio psicológico sobre um território mental específico.
RESULTADO: Marca pessoal incontornável, autoridade invisível, percepção inevitável.

DISSECAÇÃO NEURAL (7 CAMADAS):
1. Público - Realidade visceral do avatar
2. Dor Oculta - O segredo sujo que não admitem
3. Rotina de Sangramento - O inferno diário que vivem
4. Desejos Escondidos - O que querem mas não falam
5. Obstáculos/Mentiras - O que bloqueia eles
6. Pontos de Gatilho - O que quebra eles
7. Pesadelos Recorrentes - O medo que não sai da cabeça

PRIMEIRA LINHA (POSICIONAMENTO):
"Sou quem [AVATAR] procura quando [MOMENTO DE RUPTURA]..."
"Eu transformo [PROBLEMA] em [RESULTADO]..."
"Porque [NOVO CONTEXTO]."`

const pilarPresenca = `[PILAR 2: PRESENÇA - CAMPO GRAVITACIONAL]

PROPÓSITO: Transformar Instagram em campo gravitacional de alto impacto.
RESULTADO: Feed e stories que criam tensão, autenticidade e inevitabilidade.
META: 25%+ de replies em 7 dias.

SISTEMA T.A.D. PARA FEED:
- TENSÃO (50%): Divide o mercado, cria desconforto, polariza.
- ALINHAMENTO (25%): Prova que você vive o que fala (lifestyle, ambiente).
- DEMONSTRAÇÃO (25%): Prova resultados reais (prints, bastidores).

STORIES (GUERRA PSICOLÓGICA):
- Lifestyle: Inveja estratégica
- Bastidores: Demonstração de autonomia
- Cases: Prova tangível de resultados
- Levantada de Mão: Mecanismo de conversão`

const pilarMonetizacao = `[PILAR 3: MONETIZAÇÃO - TEIA DE OFERTAS]

PROPÓSITO: Converter tensão em caixa usando arquitetura de percepção.
RESULTADO: Vendas previsíveis e escaláveis, sem funis lineares nem lançamentos.

PRINCÍPIO CENTRAL:
- O Produto é irrelevante. A Transformação é tudo.
- Teia de Ofertas: Omnidirecional.
- Qualquer ponto (Story, Bio, Post) leva à venda.

FATORES DE CONVERSÃO:
1. Tensão Instalada - O cliente precisa sentir desconforto
2. Promessa Específica - Clareza absoluta do resultado
3. Velocidade Percebida - Quanto tempo até o resultado`

const logicaMestra = `[LÓGICA MESTRA DO SISTEMA]

> Simples na forma. Brutal na execução.

1. SEM DISSECAÇÃO, NÃO HÁ TENSÃO.
2. SEM TENSÃO, NÃO HÁ RESPOSTA.
3. SEM RESPOSTA, NÃO HÁ CAIXA.

A sequência é inviolável. Pular etapas = resultado zero.`

const expressaoImpacto = `[MATRIZ DE EXPRESSÃO DE IMPACTO]

PRINCÍPIO: Adaptação contextual estratégica.
Sistema expressivo dinâmico calibrado para criar impacto transformacional.

NÍVEIS DE INTENSIDADE:
- ABERTURA EXPLOSIVA (10/10): Confronto direto com a realidade atual
- DIAGNÓSTICO BRUTAL (9/10): Exposição sem filtro do problema real
- FECHAMENTO TENSIONAL (10/10): Urgência + escolha binária

PADRÃO DE COMUNICAÇÃO:
- Direto ao ponto, sem rodeios
- Linguagem informal mas precisa
- Foco em resultados, não em sentimentos
- Tensão constante, nunca conforto`

// DefaultCorpus returns the built-in passages of each persona
func DefaultCorpus() map[string][]string {
	return map[string][]string{
		pkg.PersonaSocialMedia: {
			"Ajudo empreendedores a crescer no Instagram e vender mais.",
			"Estratégias de conteúdo para redes sociais que convertem.",
			"Criação de posts, stories e reels para engajamento.",
			"Análise de métricas e otimização de perfil.",
			"Planejamento de calendário editorial.",
			"Dicas de fotografia e design para feed.",
			pilarPresenca,
			pilarMonetizacao,
		},
		pkg.PersonaConsultant: {
			metodoMD,
			pilarNarrativa,
			pilarPresenca,
			pilarMonetizacao,
			logicaMestra,
			expressaoImpacto,
		},
	}
}
