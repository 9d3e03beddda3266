package urls

// Documentation URLs shown in CLI troubleshooting boxes.
// All URLs point to the documentation site at https://muurk.github.io/squidly/

// GettingStarted is the quick start guide for hosts running a first session.
const GettingStarted = "https://muurk.github.io/squidly/getting-started/overview/"

// RelaySetup covers running squidly-relay on a LAN or behind TLS.
const RelaySetup = "https://muurk.github.io/squidly/relay/setup/"

// Walkthroughs explains the step catalog format used by --steps.
const Walkthroughs = "https://muurk.github.io/squidly/walkthroughs/catalog/"

// WordPrediction documents the corpus layout expected by --corpus.
const WordPrediction = "https://muurk.github.io/squidly/keyboard/word-prediction/"

// TroubleshootingGuide provides solutions to connection and sync issues.
const TroubleshootingGuide = "https://muurk.github.io/squidly/troubleshooting/"
